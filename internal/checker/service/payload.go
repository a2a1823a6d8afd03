package service

import (
	"bytes"
	"context"
	"encoding/json"

	"solcheck/internal/checker/model"
	appErr "solcheck/pkg/errors"
)

const (
	msgBadJSON       = "We accept only correct JSON."
	msgMissingFields = `Required "sourceCode" or "tests" fields are missing!`
	msgBadFieldTypes = `"sourceCode" must be dict and "tests" must be list`
)

// CheckPayload is the wire form of a check request, shared by the HTTP
// endpoint and the queue consumer. SourceRef may replace SourceCode.
type CheckPayload struct {
	CheckID      string
	SourceCode   model.SourceFileSet
	SourceRef    *model.SourceRef
	Tests        model.TestSuite
	BuildTimeout *float64
	TestTimeout  *float64
}

// ParsePayload decodes a request body. Errors carry the messages existing
// clients match on.
func ParsePayload(data []byte) (CheckPayload, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil || raw == nil {
		return CheckPayload{}, appErr.BadRequest(msgBadJSON)
	}

	var p CheckPayload
	sourceRaw, hasSource := field(raw, "sourceCode")
	refRaw, hasRef := field(raw, "sourceRef")
	testsRaw, hasTests := field(raw, "tests")
	if (!hasSource && !hasRef) || !hasTests {
		return CheckPayload{}, appErr.BadRequest(msgMissingFields)
	}

	if hasSource {
		if err := json.Unmarshal(sourceRaw, &p.SourceCode); err != nil {
			return CheckPayload{}, appErr.BadRequest(msgBadFieldTypes)
		}
	} else {
		var ref model.SourceRef
		if err := json.Unmarshal(refRaw, &ref); err != nil {
			return CheckPayload{}, appErr.BadRequest(`"sourceRef" must be an object with "bucket" and "key"`)
		}
		p.SourceRef = &ref
	}

	var items []json.RawMessage
	if err := json.Unmarshal(testsRaw, &items); err != nil {
		return CheckPayload{}, appErr.BadRequest(msgBadFieldTypes)
	}
	p.Tests = make(model.TestSuite, len(items))
	for i, item := range items {
		if err := json.Unmarshal(item, &p.Tests[i]); err != nil {
			return CheckPayload{}, appErr.New(appErr.InvalidParams).
				WithMessagef("tests[%d]: %s", i, err.Error()).
				WithDetail("test", i)
		}
	}

	var err error
	if p.BuildTimeout, err = optionalNumber(raw, "buildTimeout"); err != nil {
		return CheckPayload{}, err
	}
	if p.TestTimeout, err = optionalNumber(raw, "testTimeout"); err != nil {
		return CheckPayload{}, err
	}
	if idRaw, ok := field(raw, "checkId"); ok {
		if err := json.Unmarshal(idRaw, &p.CheckID); err != nil {
			return CheckPayload{}, appErr.BadRequest(`"checkId" must be a string`)
		}
	}
	return p, nil
}

// field returns a present, non-null value.
func field(raw map[string]json.RawMessage, name string) (json.RawMessage, bool) {
	v, ok := raw[name]
	if !ok || bytes.Equal(bytes.TrimSpace(v), []byte("null")) {
		return nil, false
	}
	return v, true
}

func optionalNumber(raw map[string]json.RawMessage, name string) (*float64, error) {
	v, ok := field(raw, name)
	if !ok {
		return nil, nil
	}
	var f float64
	if err := json.Unmarshal(v, &f); err != nil {
		return nil, appErr.BadRequest(`"` + name + `" must be a number`)
	}
	return &f, nil
}

// SourceLoader expands a stored source archive.
type SourceLoader interface {
	Load(ctx context.Context, ref model.SourceRef) (model.SourceFileSet, error)
}

// Intake turns payloads into validated check requests.
type Intake struct {
	limits Limits
	loader SourceLoader
}

// NewIntake creates an Intake. loader may be nil, in which case source
// references are rejected.
func NewIntake(limits Limits, loader SourceLoader) *Intake {
	return &Intake{limits: limits.WithDefaults(), loader: loader}
}

// Limits returns the effective limits.
func (i *Intake) Limits() Limits {
	return i.limits
}

// Request resolves timeouts and the source set of p.
func (i *Intake) Request(ctx context.Context, p CheckPayload) (model.CheckRequest, error) {
	build, test, err := i.limits.Resolve(p.BuildTimeout, p.TestTimeout, len(p.Tests))
	if err != nil {
		return model.CheckRequest{}, err
	}

	files := p.SourceCode
	if files == nil && p.SourceRef != nil {
		if i.loader == nil {
			return model.CheckRequest{}, appErr.BadRequest("source references are not enabled on this server")
		}
		if files, err = i.loader.Load(ctx, *p.SourceRef); err != nil {
			return model.CheckRequest{}, err
		}
	}

	req := model.CheckRequest{
		CheckID:      p.CheckID,
		Source:       files,
		Tests:        p.Tests,
		BuildTimeout: build,
		TestTimeout:  test,
	}
	if err := req.Validate(); err != nil {
		return model.CheckRequest{}, err
	}
	return req, nil
}
