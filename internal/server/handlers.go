package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/rezonia/xrechnung/internal/codec"
	"github.com/rezonia/xrechnung/internal/model"
	"github.com/rezonia/xrechnung/internal/signature"
	"github.com/rezonia/xrechnung/internal/store"
	"github.com/rezonia/xrechnung/internal/validator"
)

const (
	queryDateLayout = "2006-01-02"
	requestTimeout  = 30 * time.Second
)

func readBody(c *gin.Context) ([]byte, bool) {
	body, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "failed to read request body"})
		return nil, false
	}
	if len(body) == 0 {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "empty request body"})
		return nil, false
	}
	return body, true
}

func parseQueryDate(c *gin.Context, key string) (time.Time, bool) {
	raw := c.Query(key)
	if raw == "" {
		return time.Time{}, true
	}
	t, err := time.Parse(queryDateLayout, raw)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   fmt.Sprintf("invalid %s", key),
			Details: "want YYYY-MM-DD",
		})
		return time.Time{}, false
	}
	return t, true
}

func (s *Server) handleListInvoices(c *gin.Context) {
	from, ok := parseQueryDate(c, "start_date")
	if !ok {
		return
	}
	to, ok := parseQueryDate(c, "end_date")
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()

	invs, err := s.store.List(ctx, store.Filter{Supplier: c.Query("supplier"), From: from, To: to})
	if err != nil {
		s.internalError(c, err)
		return
	}

	resp := ListResponse{Invoices: make([]InvoiceSummary, 0, len(invs))}
	for _, inv := range invs {
		resp.Invoices = append(resp.Invoices, summaryOf(inv))
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleGetInvoice(c *gin.Context) {
	inv, ok := s.loadInvoice(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, InvoiceResponse{Invoice: inv})
}

func (s *Server) handleExportInvoice(c *gin.Context) {
	inv, ok := s.loadInvoice(c)
	if !ok {
		return
	}

	doc, ok := s.storedDocument(c, inv.Number)
	if !ok {
		return
	}
	if requested := c.Query("syntax"); doc != nil && (requested == "" || requested == doc.Syntax) {
		sendXML(c, inv.Number, doc.Data)
		return
	}

	syntax := c.DefaultQuery("syntax", s.settings.Syntax)
	data, err := s.codec.EncodeSyntax(inv, syntax)
	var rejected *codec.EncodeRejectedError
	switch {
	case errors.Is(err, codec.ErrUnknownSyntax):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "unknown syntax", Details: syntax})
		return
	case errors.As(err, &rejected):
		c.JSON(http.StatusUnprocessableEntity, ErrorResponse{
			Error:      "invoice fails validation",
			Violations: rejected.Violations,
		})
		return
	case err != nil:
		s.internalError(c, err)
		return
	}

	sendXML(c, inv.Number, data)
}

func sendXML(c *gin.Context, number string, data []byte) {
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="invoice_%s.xml"`, number))
	c.Data(http.StatusOK, "application/xml", data)
}

// storedDocument returns the imported XML for number, nil when there is none.
func (s *Server) storedDocument(c *gin.Context, number string) (*store.Document, bool) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()

	doc, err := s.store.Document(ctx, number)
	if errors.Is(err, model.ErrNotFound) {
		return nil, true
	}
	if err != nil {
		s.internalError(c, err)
		return nil, false
	}
	return &doc, true
}

func (s *Server) handleCreateInvoice(c *gin.Context) {
	body, ok := readBody(c)
	if !ok {
		return
	}

	inv, err := model.DecodeJSON(body, s.settings.DefaultTaxRate)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid invoice", Details: err.Error()})
		return
	}
	s.saveValid(c, inv, nil, nil)
}

func (s *Server) handleImportInvoice(c *gin.Context) {
	body, ok := readBody(c)
	if !ok {
		return
	}

	res, ok := s.decode(c, body)
	if !ok {
		return
	}
	s.saveValid(c, res.Invoice, res.Violations, &store.Document{Syntax: res.Syntax, Data: body})
}

func (s *Server) handleValidate(c *gin.Context) {
	body, ok := readBody(c)
	if !ok {
		return
	}

	res, ok := s.decode(c, body)
	if !ok {
		return
	}
	violations := s.violations(res.Invoice, res.Violations)
	c.JSON(http.StatusOK, ValidationResponse{
		Valid:       len(violations) == 0,
		Syntax:      res.Syntax,
		Unvalidated: res.Unvalidated,
		Violations:  violations,
	})
}

func (s *Server) handleVerify(c *gin.Context) {
	if s.verifier == nil {
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{
			Error:   "signature verification unavailable",
			Details: "no trusted certificates configured",
		})
		return
	}
	body, ok := readBody(c)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()

	result, err := s.verifier.Verify(ctx, body)
	if errors.Is(err, signature.ErrNotXML(nil)) {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "document is not XML", Details: err.Error()})
		return
	}
	if err != nil {
		resp := gin.H{"error": "signature verification failed", "details": err.Error()}
		if result != nil {
			resp["result"] = result
		}
		c.JSON(http.StatusUnprocessableEntity, resp)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (s *Server) loadInvoice(c *gin.Context) (*model.Invoice, bool) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()

	number := c.Param("number")
	inv, err := s.store.Load(ctx, number)
	if errors.Is(err, model.ErrNotFound) {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "invoice not found", Details: number})
		return nil, false
	}
	if err != nil {
		s.internalError(c, err)
		return nil, false
	}
	return inv, true
}

func (s *Server) decode(c *gin.Context, body []byte) (*codec.DecodeResult, bool) {
	res, err := s.codec.Decode(body)
	var malformed *model.MalformedDocumentError
	if errors.As(err, &malformed) {
		c.JSON(http.StatusUnprocessableEntity, ErrorResponse{
			Error:   "malformed document",
			Details: err.Error(),
			Path:    malformed.Path,
		})
		return nil, false
	}
	if err != nil {
		s.internalError(c, err)
		return nil, false
	}
	return res, true
}

// violations merges decode reconciliation findings with the rule engine.
func (s *Server) violations(inv *model.Invoice, decoded []validator.Violation) []validator.Violation {
	out := make([]validator.Violation, 0, len(decoded))
	out = append(out, decoded...)
	return append(out, s.validator.Validate(inv).Violations...)
}

// saveValid stores inv when it passes validation. doc is the source XML of an
// import, nil for JSON.
func (s *Server) saveValid(c *gin.Context, inv *model.Invoice, decoded []validator.Violation, doc *store.Document) {
	if violations := s.violations(inv, decoded); len(violations) > 0 {
		c.JSON(http.StatusUnprocessableEntity, ErrorResponse{
			Error:      "invoice fails validation",
			Violations: violations,
		})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()

	var (
		syntax string
		err    error
	)
	if doc != nil {
		syntax = doc.Syntax
		err = s.store.SaveWithDocument(ctx, inv, *doc)
	} else {
		err = s.store.Save(ctx, inv)
	}
	if err != nil {
		s.internalError(c, err)
		return
	}
	l := requestLog(c)
	l.Info().Str("invoice", inv.Number).Str("syntax", syntax).Msg("invoice stored")
	c.JSON(http.StatusCreated, InvoiceResponse{Invoice: inv, Syntax: syntax})
}

func (s *Server) internalError(c *gin.Context, err error) {
	l := requestLog(c)
	l.Error().Err(err).Msg("request failed")
	c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal error"})
}
