package controller

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"solcheck/internal/checker/lint"
	"solcheck/internal/checker/model"
	"solcheck/internal/checker/service"
	appErr "solcheck/pkg/errors"
	"solcheck/pkg/utils/response"

	"github.com/gin-gonic/gin"
)

// DefaultMaxBodyBytes bounds a request body.
const DefaultMaxBodyBytes = 16 << 20

// Checker runs checks and lint passes.
type Checker interface {
	Check(ctx context.Context, req model.CheckRequest) (model.CheckResult, error)
	Lint(files model.SourceFileSet) lint.Report
}

// CheckController handles the check and lint endpoints.
type CheckController struct {
	checker      Checker
	intake       *service.Intake
	maxBodyBytes int64
}

// NewCheckController creates a new CheckController.
func NewCheckController(checker Checker, intake *service.Intake, maxBodyBytes int64) *CheckController {
	if maxBodyBytes <= 0 {
		maxBodyBytes = DefaultMaxBodyBytes
	}
	return &CheckController{checker: checker, intake: intake, maxBodyBytes: maxBodyBytes}
}

// CheckSolution builds and tests the submitted source set and answers with
// the bare result object.
func (h *CheckController) CheckSolution(c *gin.Context) {
	body, err := h.readBody(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	payload, err := service.ParsePayload(body)
	if err != nil {
		response.Error(c, err)
		return
	}
	req, err := h.intake.Request(c.Request.Context(), payload)
	if err != nil {
		response.Error(c, err)
		return
	}

	res, err := h.checker.Check(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, res)
}

// LintRequest is the body of POST /lint.
type LintRequest struct {
	SourceCode model.SourceFileSet `json:"sourceCode"`
}

// LintResponse is the answer of POST /lint.
type LintResponse struct {
	Success  bool                      `json:"success"`
	Message  string                    `json:"message"`
	Findings map[string][]lint.Finding `json:"findings"`
}

// Lint runs only the lint engine.
func (h *CheckController) Lint(c *gin.Context) {
	body, err := h.readBody(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	var req LintRequest
	if err := json.Unmarshal(body, &req); err != nil {
		response.BadRequest(c, "We accept only correct JSON.")
		return
	}
	if req.SourceCode == nil {
		response.BadRequest(c, `Required "sourceCode" field is missing!`)
		return
	}
	if err := req.SourceCode.Validate(); err != nil {
		response.Error(c, err)
		return
	}

	report := h.checker.Lint(req.SourceCode)
	response.JSON(c, LintResponse{
		Success:  report.OK(),
		Message:  report.String(),
		Findings: report.ByPath(),
	})
}

func (h *CheckController) readBody(c *gin.Context) ([]byte, error) {
	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, h.maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, appErr.New(appErr.SourceTooLarge).WithMessagef("request body exceeds %d bytes", h.maxBodyBytes)
		}
		return nil, appErr.BadRequest("We accept only correct JSON.")
	}
	return body, nil
}
