package server

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	checkoutdomain "github.com/smallbiznis/coursepay/internal/checkout/domain"
	obscontext "github.com/smallbiznis/coursepay/internal/observability/context"
	"github.com/smallbiznis/coursepay/internal/observability/logger"
	"go.uber.org/zap"
)

type checkInvoiceRequest struct {
	InvoiceID string `json:"invoiceId"`
}

func (s *Server) CreateInvoice(c *gin.Context) {
	caller, ok := callerFromContext(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	var req checkoutdomain.CreateInvoiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	req.OwnerID = caller.UserID

	view, err := s.checkoutSvc.CreateInvoice(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.Set("invoice_id", view.InvoiceID)

	c.JSON(http.StatusOK, view)
}

func (s *Server) CheckInvoice(c *gin.Context) {
	caller, ok := callerFromContext(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	var req checkInvoiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	c.Set("invoice_id", req.InvoiceID)

	res, err := s.checkoutSvc.CheckPaid(c.Request.Context(), caller.UserID, req.InvoiceID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, res)
}

func (s *Server) GetInvoice(c *gin.Context) {
	caller, ok := callerFromContext(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}
	id := strings.TrimSpace(c.Param("id"))
	c.Set("invoice_id", id)

	view, err := s.checkoutSvc.GetInvoice(c.Request.Context(), caller.UserID, id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, view)
}

func (s *Server) GetReceipt(c *gin.Context) {
	caller, ok := callerFromContext(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}
	id := strings.TrimSpace(c.Param("id"))
	c.Set("invoice_id", id)

	doc, err := s.checkoutSvc.Receipt(c.Request.Context(), caller.UserID, id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="receipt-%s.pdf"`, id))
	c.Data(http.StatusOK, "application/pdf", doc)
}

// HandleCallback answers 200 once the invoice was checked, paid or not, so
// the gateway stops retrying. Unknown invoices get 404.
func (s *Server) HandleCallback(c *gin.Context) {
	correlationID := strings.TrimSpace(c.Query("invoice"))
	if correlationID == "" {
		AbortWithError(c, newValidationError("invoice", "required", "invoice is required"))
		return
	}

	ctx := obscontext.WithActor(c.Request.Context(), obscontext.ActorSystem, "gateway")
	res, err := s.checkoutSvc.HandleCallback(ctx, correlationID)
	if err != nil {
		logger.FromContext(ctx).Warn("gateway callback failed", zap.Error(err))
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, res)
}
