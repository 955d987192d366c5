package output

import (
	"encoding/json"

	"github.com/SevenOfNine-ai/redditgw/internal/audit"
	"github.com/SevenOfNine-ai/redditgw/internal/gateway"
	"github.com/SevenOfNine-ai/redditgw/internal/tools"
)

// JSONFormatter renders payloads as JSON.
type JSONFormatter struct {
	Indent bool
}

func (f *JSONFormatter) FormatStatus(status gateway.Status) (string, error) {
	return f.marshal(status)
}

func (f *JSONFormatter) FormatTools(specs []tools.Spec) (string, error) {
	if specs == nil {
		specs = []tools.Spec{}
	}
	return f.marshal(specs)
}

func (f *JSONFormatter) FormatResult(result gateway.Result) (string, error) {
	return f.marshal(result)
}

func (f *JSONFormatter) FormatAudit(entries []audit.Entry) (string, error) {
	if entries == nil {
		entries = []audit.Entry{}
	}
	return f.marshal(entries)
}

func (f *JSONFormatter) FormatChecks(checks []Check) (string, error) {
	if checks == nil {
		checks = []Check{}
	}
	return f.marshal(checks)
}

func (f *JSONFormatter) marshal(v any) (string, error) {
	var (
		data []byte
		err  error
	)

	if f.Indent {
		data, err = json.MarshalIndent(v, "", "  ")
	} else {
		data, err = json.Marshal(v)
	}
	if err != nil {
		return "", err
	}

	return string(data), nil
}
