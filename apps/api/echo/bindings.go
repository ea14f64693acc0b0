package echoapi

import (
	"io"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/dossier/core"
	"github.com/trezcool/dossier/core/document"
)

var (
	orderingParam = "ordering"
	fileField     = "file"
)

type Ordering struct {
	Orderings []core.DBOrdering
}

func (ord *Ordering) Bind(ctx echo.Context) {
	val := ctx.QueryParam(orderingParam)
	if val == "" {
		return
	}

	for _, field := range strings.Split(val, ",") {
		field = strings.TrimSpace(field)
		descending := strings.HasPrefix(field, "-")
		if descending {
			field = field[1:] // drop "-"
		}
		if field == "" {
			continue
		}
		ord.Orderings = append(ord.Orderings, core.DBOrdering{Field: field, Ascending: !descending})
	}
}

// bindFile reads the multipart file of the request. The caller must close the returned io.Closer.
func bindFile(ctx echo.Context) (document.File, io.Closer, error) {
	fh, err := ctx.FormFile(fileField)
	if err != nil {
		if err == http.ErrMissingFile || err == http.ErrNotMultipart {
			return document.File{}, nil, errMissingFile
		}
		return document.File{}, nil, errors.Wrap(err, "reading multipart form")
	}

	src, err := fh.Open()
	if err != nil {
		return document.File{}, nil, errors.Wrap(err, "opening multipart file")
	}
	f := document.File{
		Name:        fh.Filename,
		Size:        fh.Size,
		ContentType: fh.Header.Get(echo.HeaderContentType),
		Body:        src,
	}
	return f, src, nil
}
