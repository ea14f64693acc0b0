package document

import (
	"fmt"
	"mime"
	"strings"

	"github.com/pkg/errors"

	"github.com/trezcool/dossier/core"
)

// contentTypes maps accepted file types to their MIME types.
var contentTypes = map[string][]string{
	"pdf":  {"application/pdf"},
	"jpg":  {"image/jpeg"},
	"jpeg": {"image/jpeg"},
	"png":  {"image/png"},
	"txt":  {"text/plain"},
}

// UploadProfile is the set of accepted file types and the size ceiling of an upload flow.
type UploadProfile struct {
	Name    string
	Types   []string // extensions without the dot, eg. "pdf"
	MaxSize int64    // bytes
}

var errInvalidFile = errors.New("invalid file")

// Check validates f against the profile. It never reads the file body.
func (p UploadProfile) Check(f File) error {
	var flds []core.FieldError
	add := func(msg string) {
		flds = append(flds, core.FieldError{Field: "file", Error: msg})
	}

	if strings.TrimSpace(f.Name) == "" {
		add("file name is required")
	}
	switch {
	case f.Size <= 0:
		add("file is empty")
	case p.MaxSize > 0 && f.Size > p.MaxSize:
		add(fmt.Sprintf("file is too large (%s); the maximum size is %s", humanSize(f.Size), humanSize(p.MaxSize)))
	}
	if !p.accepts(f) {
		add("unsupported file type; accepted types: " + strings.Join(p.Types, ", "))
	}

	if len(flds) > 0 {
		return core.NewValidationError(errInvalidFile, flds...)
	}
	return nil
}

// accepts matches the file extension against the profile types, and the declared
// content type, when there is a specific one, against the MIME types of that extension.
func (p UploadProfile) accepts(f File) bool {
	ext := f.Ext()
	if !p.hasType(ext) {
		return false
	}
	ct := f.ContentType
	if ct == "" {
		return true
	}
	mt, _, err := mime.ParseMediaType(ct)
	if err != nil {
		return false
	}
	if mt == "application/octet-stream" {
		return true
	}
	for _, expected := range contentTypes[ext] {
		if mt == expected {
			return true
		}
	}
	return false
}

func (p UploadProfile) hasType(ext string) bool {
	if ext == "" {
		return false
	}
	for _, t := range p.Types {
		if strings.EqualFold(strings.TrimPrefix(t, "."), ext) {
			return true
		}
	}
	return false
}

// ProfilesFromConfig builds the upload profiles from the app configuration.
func ProfilesFromConfig(conf map[string]core.UploadProfileConfig) map[string]UploadProfile {
	profiles := make(map[string]UploadProfile, len(conf))
	for name, pc := range conf {
		types := make([]string, 0, len(pc.Types))
		for _, t := range pc.Types {
			types = append(types, strings.ToLower(strings.TrimPrefix(core.CleanString(t), ".")))
		}
		profiles[name] = UploadProfile{Name: name, Types: types, MaxSize: pc.MaxSize}
	}
	return profiles
}

// SlotsFromConfig builds the document slots from the app configuration.
func SlotsFromConfig(conf []core.SlotConfig) []Slot {
	slots := make([]Slot, 0, len(conf))
	for _, sc := range conf {
		slots = append(slots, Slot{
			ID:          sc.ID,
			Name:        sc.Name,
			Description: sc.Description,
			Required:    sc.Required,
			Profile:     sc.Profile,
		})
	}
	return slots
}

func humanSize(n int64) string {
	if n >= core.MiB {
		return fmt.Sprintf("%.1f MiB", float64(n)/core.MiB)
	}
	if n >= 1<<10 {
		return fmt.Sprintf("%.1f KiB", float64(n)/(1<<10))
	}
	return fmt.Sprintf("%d B", n)
}
