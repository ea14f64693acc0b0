package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/dossier/core"
	"github.com/trezcool/dossier/core/document"
	"github.com/trezcool/dossier/core/user"
)

type documentApi struct {
	svc      *document.Service
	usrSvc   *user.Service
	validate *validator.Validate
}

func registerDocumentAPI(
	g *echo.Group,
	jwt echo.MiddlewareFunc,
	svc *document.Service,
	usrSvc *user.Service,
	validate *validator.Validate,
) {
	api := documentApi{
		svc:      svc,
		usrSvc:   usrSvc,
		validate: validate,
	}

	dg := g.Group("/documents", jwt)
	dg.GET("/slots", api.querySlots)
	dg.GET("/review-queue", api.reviewQueue, reviewerMiddleware())
	dg.GET("/:id", api.retrieve)
	dg.GET("/:id/history", api.history)
	dg.POST("/:id/approve", api.approve, reviewerMiddleware())
	dg.POST("/:id/reject", api.reject, reviewerMiddleware())
	dg.POST("/:id/request-resubmission", api.requestResubmission, reviewerMiddleware())

	sg := g.Group("/students/:owner/documents", jwt)
	sg.GET("", api.queryOwner)
	sg.POST("/provision", api.provision, adminMiddleware())
	sg.POST("/:slot", api.submit)

	g.GET("/guardians/me/documents", api.guardianOverview, jwt, parentMiddleware())
}

// Handlers

func (api *documentApi) querySlots(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, api.svc.Slots())
}

func (api *documentApi) queryOwner(ctx echo.Context) error {
	actor, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	records, summary, err := api.svc.Records(ctx.Request().Context(), actor, ctx.Param("owner"))
	if err != nil {
		return errors.Wrap(err, "listing owner documents")
	}
	if records == nil {
		records = []document.Record{}
	}
	return ctx.JSON(http.StatusOK, OwnerDocumentsResponse{Records: records, Summary: summary})
}

func (api *documentApi) provision(ctx echo.Context) error {
	records, err := api.svc.Provision(ctx.Request().Context(), ctx.Param("owner"))
	if err != nil {
		return errors.Wrap(err, "provisioning documents")
	}
	return ctx.JSON(http.StatusOK, records)
}

func (api *documentApi) submit(ctx echo.Context) error {
	actor, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	f, closer, err := bindFile(ctx)
	if err != nil {
		return err
	}
	defer closer.Close()

	req := document.SubmitRequest{
		OwnerID: ctx.Param("owner"),
		SlotID:  ctx.Param("slot"),
		File:    f,
	}
	rec, err := api.svc.Submit(ctx.Request().Context(), actor, req)
	if err != nil {
		return errors.Wrap(err, "submitting document")
	}
	return ctx.JSON(http.StatusOK, rec)
}

func (api *documentApi) reviewQueue(ctx echo.Context) error {
	actor, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	filter := new(document.QueryFilter)
	if err = ctx.Bind(filter); err != nil {
		return errors.Wrap(err, "binding to QueryFilter")
	}
	if err = filter.Validate(api.validate); err != nil {
		return err
	}
	ordering := new(Ordering)
	ordering.Bind(ctx)

	records, count, err := api.svc.ReviewQueue(ctx.Request().Context(), actor, *filter, ordering.Orderings...)
	if err != nil {
		return errors.Wrap(err, "querying review queue")
	}
	if records == nil {
		records = []document.Record{}
	}
	return ctx.JSON(http.StatusOK, ReviewQueueResponse{Records: records, PendingReviewCount: count})
}

func (api *documentApi) retrieve(ctx echo.Context) error {
	actor, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	rec, err := api.svc.Record(ctx.Request().Context(), actor, ctx.Param("id"))
	if err != nil {
		return hideForbidden(err, "retrieving document")
	}
	return ctx.JSON(http.StatusOK, rec)
}

func (api *documentApi) history(ctx echo.Context) error {
	actor, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	history, err := api.svc.History(ctx.Request().Context(), actor, ctx.Param("id"))
	if err != nil {
		return hideForbidden(err, "retrieving document history")
	}
	if history == nil {
		history = []document.Transition{}
	}
	return ctx.JSON(http.StatusOK, history)
}

func (api *documentApi) approve(ctx echo.Context) error {
	actor, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	rec, err := api.svc.Approve(ctx.Request().Context(), actor, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "approving document")
	}
	return ctx.JSON(http.StatusOK, rec)
}

func (api *documentApi) reject(ctx echo.Context) error {
	actor, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	var data RejectRequest
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to RejectRequest")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	rec, err := api.svc.Reject(ctx.Request().Context(), actor, ctx.Param("id"), data.Reason)
	if err != nil {
		return errors.Wrap(err, "rejecting document")
	}
	return ctx.JSON(http.StatusOK, rec)
}

func (api *documentApi) requestResubmission(ctx echo.Context) error {
	actor, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	var data ResubmissionRequest
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to ResubmissionRequest")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	rec, err := api.svc.RequestResubmission(ctx.Request().Context(), actor, ctx.Param("id"), data.Instructions)
	if err != nil {
		return errors.Wrap(err, "requesting resubmission")
	}
	return ctx.JSON(http.StatusOK, rec)
}

func (api *documentApi) guardianOverview(ctx echo.Context) error {
	actor, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	overviews, err := api.svc.GuardianOverview(ctx.Request().Context(), actor)
	if err != nil {
		return errors.Wrap(err, "getting guardian overview")
	}
	return ctx.JSON(http.StatusOK, overviews)
}

// hideForbidden answers 404 for records the actor may not see, so that record IDs cannot be guessed.
func hideForbidden(err error, msg string) error {
	if errors.Cause(err) == document.ErrPermissionDenied {
		return errHttpNotFound
	}
	return errors.Wrap(err, msg)
}

type (
	OwnerDocumentsResponse struct {
		Records []document.Record `json:"records"`
		document.Summary
	}

	ReviewQueueResponse struct {
		Records            []document.Record `json:"records"`
		PendingReviewCount int               `json:"pending_review_count"`
	}

	RejectRequest struct {
		Reason string `json:"reason" validate:"required,notblank,max=1000"`
	}

	ResubmissionRequest struct {
		Instructions string `json:"instructions" validate:"max=1000"`
	}
)

func (rr *RejectRequest) Validate(validate *validator.Validate) error {
	rr.Reason = core.CleanString(rr.Reason)
	return validate.Struct(rr)
}

func (rr *ResubmissionRequest) Validate(validate *validator.Validate) error {
	rr.Instructions = core.CleanString(rr.Instructions)
	return validate.Struct(rr)
}
