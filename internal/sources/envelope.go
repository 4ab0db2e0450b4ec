package sources

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"citypulse/internal/types"
)

// The municipal open API wraps every dataset in the same envelope, keyed by
// the service name:
//
//	{
//	  "<SERVICE>": {
//	    "list_total_count": 1234,
//	    "RESULT": {"CODE": "INFO-000", "MESSAGE": "OK"},
//	    "row": [ { ...dataset fields... } ]
//	  }
//	}
//
// Requests page through the dataset with 1-based inclusive start/end row
// indexes in the URL path:
//
//	{base}/{key}/json/{service}/{startIndex}/{endIndex}/
const (
	// resultOK is the success code.
	resultOK = "INFO-000"
	// resultNoData is returned for an empty dataset; treated as a valid
	// zero-row response, not an error.
	resultNoData = "INFO-200"
)

// resultCode is the status block inside the envelope.
type resultCode struct {
	Code    string `json:"CODE"`
	Message string `json:"MESSAGE"`
}

// envelope is the generic open-API response for a dataset of row type T.
type envelope[T any] struct {
	TotalCount int        `json:"list_total_count"`
	Result     resultCode `json:"RESULT"`
	Rows       []T        `json:"row"`
}

// decodeEnvelope unwraps the service-keyed envelope from body. Any shape
// mismatch is a malformed_response: the source is marked failed for the
// cycle and the previous snapshot is retained.
func decodeEnvelope[T any](body []byte, service string) (*envelope[T], error) {
	var outer map[string]json.RawMessage
	if err := json.Unmarshal(body, &outer); err != nil {
		return nil, types.NewAppError(types.ErrCodeMalformedResponse,
			fmt.Sprintf("%s: response is not a JSON object", service), err)
	}

	inner, ok := outer[service]
	if !ok {
		// Error responses put RESULT at the top level instead of under the
		// service key.
		if raw, hasResult := outer["RESULT"]; hasResult {
			var rc resultCode
			_ = json.Unmarshal(raw, &rc)
			return nil, types.NewAppError(types.ErrCodeMalformedResponse,
				fmt.Sprintf("%s: upstream error %s: %s", service, rc.Code, rc.Message), nil)
		}
		return nil, types.NewAppError(types.ErrCodeMalformedResponse,
			fmt.Sprintf("%s: service key missing from response", service), nil)
	}

	var env envelope[T]
	if err := json.Unmarshal(inner, &env); err != nil {
		return nil, types.NewAppError(types.ErrCodeMalformedResponse,
			fmt.Sprintf("%s: envelope decode failed", service), err)
	}

	switch env.Result.Code {
	case resultOK:
		return &env, nil
	case resultNoData:
		env.Rows = nil
		env.TotalCount = 0
		return &env, nil
	default:
		return nil, types.NewAppError(types.ErrCodeMalformedResponse,
			fmt.Sprintf("%s: upstream result %s: %s", service, env.Result.Code, env.Result.Message), nil)
	}
}

// fetchPaged walks the dataset page by page until TotalCount rows have been
// collected. It returns the decoded rows plus the raw page bodies for
// retention. The filter path segment is appended to the request URL when
// non-empty (district or category filters).
//
// A failure after at least one successful page returns the rows collected so
// far together with the error; the caller decides whether the subset is
// usable (committed as a partial snapshot) or not.
func fetchPaged[T any](ctx context.Context, client *Client, baseURL, apiKey, service, filter string, pageSize int) ([]T, []byte, error) {
	if pageSize <= 0 {
		pageSize = 1000
	}

	var rows []T
	var raw bytes.Buffer

	start := 1
	for {
		end := start + pageSize - 1
		url := fmt.Sprintf("%s/%s/json/%s/%d/%d/", baseURL, apiKey, service, start, end)
		if filter != "" {
			url += filter + "/"
		}

		body, err := client.GetBody(ctx, url)
		if err != nil {
			return rows, raw.Bytes(), err
		}

		env, err := decodeEnvelope[T](body, service)
		if err != nil {
			return rows, raw.Bytes(), err
		}

		if raw.Len() > 0 {
			raw.WriteByte('\n')
		}
		raw.Write(body)

		rows = append(rows, env.Rows...)

		if len(env.Rows) == 0 || len(rows) >= env.TotalCount {
			return rows, raw.Bytes(), nil
		}
		start = end + 1
	}
}
