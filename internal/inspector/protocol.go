// File: internal/inspector/protocol.go
package inspector

import (
	"errors"

	jsoniter "github.com/json-iterator/go"

	"github.com/xkilldash9x/scalpel-inspector/internal/methodhandler"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Request operations.
const (
	opFetchElement          = "fetchElement"
	opFetchElements         = "fetchElements"
	opExecuteElementCommand = "executeElementCommand"
	opExecuteMethod         = "executeMethod"
	opRestart               = "restart"
	opEntries               = "entries"

	// opUnknown labels metrics for requests with any other op.
	opUnknown = "unknown"
)

// variableTypeString tags a scalar element result.
const variableTypeString = "string"

// request is one inspector request, a line on stdin or a websocket text message.
// ID is optional and echoed back so clients can correlate responses.
type request struct {
	ID        string `json:"id,omitempty"`
	Op        string `json:"op"`
	Strategy  string `json:"strategy,omitempty"`
	Selector  string `json:"selector,omitempty"`
	ElementID string `json:"elementId,omitempty"`
	Method    string `json:"method,omitempty"`
	Args      []any  `json:"args,omitempty"`
}

// response answers exactly one request. A successful response without a result
// means the lookup matched nothing.
type response struct {
	ID     string `json:"id,omitempty"`
	OK     bool   `json:"ok"`
	Result any    `json:"result,omitempty"`
	Error  string `json:"error,omitempty"`
	Status int    `json:"status,omitempty"`
}

type elementView struct {
	ID            string `json:"id"`
	Strategy      string `json:"strategy"`
	Selector      string `json:"selector"`
	VariableName  string `json:"variableName,omitempty"`
	VariableType  string `json:"variableType,omitempty"`
	VariableIndex *int   `json:"variableIndex,omitempty"`
}

type collectionView struct {
	VariableName string        `json:"variableName"`
	VariableType string        `json:"variableType"`
	Strategy     string        `json:"strategy"`
	Selector     string        `json:"selector"`
	Elements     []elementView `json:"elements"`
}

// snapshotView carries each payload or its error, never both. A nil payload
// is omitted while an empty one is still sent.
type snapshotView struct {
	Source          *string `json:"source,omitempty"`
	SourceError     string  `json:"sourceError,omitempty"`
	Screenshot      *string `json:"screenshot,omitempty"`
	ScreenshotError string  `json:"screenshotError,omitempty"`
}

type elementCommandView struct {
	snapshotView
	Element elementView `json:"element"`
	Res     any         `json:"res"`
}

type methodView struct {
	snapshotView
	Res any `json:"res"`
}

// newElementView tags the entry by kind whether or not it is named yet.
func newElementView(e methodhandler.Entry) elementView {
	v := elementView{
		ID:           e.ID,
		Strategy:     e.Strategy,
		Selector:     e.Selector,
		VariableName: e.DisplayName,
		VariableType: variableTypeString,
	}
	if e.Kind == methodhandler.KindCollectionMember {
		idx := e.CollectionIndex
		v.VariableType = methodhandler.VariableTypeArray
		v.VariableIndex = &idx
	}
	return v
}

func newCollectionView(c *methodhandler.Collection) collectionView {
	els := make([]elementView, len(c.Elements))
	for i, e := range c.Elements {
		els[i] = newElementView(e)
	}
	return collectionView{
		VariableName: c.VariableName,
		VariableType: c.VariableType,
		Strategy:     c.Strategy,
		Selector:     c.Selector,
		Elements:     els,
	}
}

func newSnapshotView(s methodhandler.Snapshot) snapshotView {
	var v snapshotView
	if s.SourceErr != nil {
		v.SourceError = s.SourceErr.Error()
	} else {
		v.Source = &s.Source
	}
	if s.ScreenshotErr != nil {
		v.ScreenshotError = s.ScreenshotErr.Error()
	} else {
		v.Screenshot = &s.Screenshot
	}
	return v
}

func errorResponse(err error) response {
	resp := response{Error: err.Error()}
	var se *methodhandler.SessionError
	if errors.As(err, &se) {
		resp.Status = se.Status
	}
	return resp
}
