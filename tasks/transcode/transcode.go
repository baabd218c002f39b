/*
Package transcode implements the transcode task, that converts the
destination responses between JSON and XML.

Options:

	to:      xml or json
	rootTag: root element of the XML documents. When not set, the single
	         key of the JSON object is used, or "doc".

Only the responses with the matching content type are converted. The
converted body is buffered before it is emitted to the client.
*/
package transcode

import (
	"fmt"
	"mime"
	"strings"

	"github.com/clbanning/mxj/v2"

	"github.com/passeplat/passeplat/analyzable"
	"github.com/passeplat/passeplat/tasks"
)

const (
	Name = "transcode"

	ToXML  = "xml"
	ToJSON = "json"
)

type options struct {
	To      string `json:"to"`
	RootTag string `json:"rootTag"`
}

type spec struct{}

type task struct {
	options
}

func NewTranscode() tasks.Spec { return spec{} }

func (spec) Name() string          { return Name }
func (spec) Version() int          { return 1 }
func (spec) Phases() []tasks.Phase { return []tasks.Phase{tasks.StartedReceiving} }

func (spec) CreateTask(o tasks.Options) (tasks.Task, error) {
	var opts options
	if err := o.Decode(&opts); err != nil {
		return nil, err
	}

	switch opts.To {
	case ToXML, ToJSON:
	case "":
		return nil, &tasks.MissingParameterError{Source: Name, Parameter: "to"}
	default:
		return nil, fmt.Errorf("%w: invalid target format %s", tasks.ErrInvalidOptions, opts.To)
	}

	return &task{opts}, nil
}

func mediaType(h *analyzable.Header) string {
	mt, _, err := mime.ParseMediaType(h.Get("Content-Type"))
	if err != nil {
		return ""
	}

	return mt
}

func isJSON(mt string) bool {
	return mt == "application/json" || strings.HasSuffix(mt, "+json")
}

func isXML(mt string) bool {
	return mt == "application/xml" || mt == "text/xml" || strings.HasSuffix(mt, "+xml")
}

func (t *task) toXML(body []byte, h *analyzable.Header) ([]byte, error) {
	if !isJSON(mediaType(h)) {
		return body, nil
	}

	mv, err := mxj.NewMapJson(body)
	if err != nil {
		return nil, fmt.Errorf("invalid json: %w", err)
	}

	var x []byte
	if t.RootTag != "" {
		x, err = mv.Xml(t.RootTag)
	} else {
		x, err = mv.Xml()
	}

	if err != nil {
		return nil, err
	}

	h.Set("Content-Type", "application/xml")
	return x, nil
}

func (t *task) toJSON(body []byte, h *analyzable.Header) ([]byte, error) {
	if !isXML(mediaType(h)) {
		return body, nil
	}

	mv, err := mxj.NewMapXml(body)
	if err != nil {
		return nil, fmt.Errorf("invalid xml: %w", err)
	}

	j, err := mv.Json()
	if err != nil {
		return nil, err
	}

	h.Set("Content-Type", "application/json")
	return j, nil
}

func (t *task) Execute(ctx *tasks.Context, _ tasks.Phase) error {
	r := ctx.Content.Response()
	if t.To == ToXML {
		r.AddBodyTransform(t.toXML)
	} else {
		r.AddBodyTransform(t.toJSON)
	}

	return nil
}
