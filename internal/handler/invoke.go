package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"

	"github.com/media-pipelines/media-pipelines-go/internal/models"
	"github.com/media-pipelines/media-pipelines-go/internal/storage"
)

// ErrUnknownHandler is returned by Invoke for a name it does not serve.
var ErrUnknownHandler = errors.New("unknown handler")

// DecodeError reports a payload that does not decode into the handler's
// request. Invoke returns it inside the handler's error response.
type DecodeError struct {
	Handler string
	Err     error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s request: %v", e.Handler, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// Names lists the handlers served by Invoke.
func (p *Pipeline) Names() []string {
	names := []string{
		NameVideoIngest, NameVideoStart, NameVideoCheck, NameVideoFinalize, NameVideoIndex,
		NameAudioIngest, NameAudioAnalyze, NameAudioIndex,
	}
	slices.Sort(names)
	return names
}

// Invoke decodes payload into the request type of the named handler and runs
// it. The response is returned as a value ready for JSON encoding. An empty
// payload is an empty request. A payload that does not decode produces the
// handler's error response; only an unknown name is returned as an error.
func (p *Pipeline) Invoke(ctx context.Context, name string, payload []byte) (any, error) {
	switch name {
	case NameVideoIngest:
		return invoke(ctx, name, payload, p.VideoIngest, videoIngestError), nil
	case NameVideoStart:
		return invoke(ctx, name, payload, p.VideoStart, startError), nil
	case NameVideoCheck:
		return invoke(ctx, name, payload, p.VideoCheck, checkError), nil
	case NameVideoFinalize:
		return invoke(ctx, name, payload, p.VideoFinalize, finalizeError), nil
	case NameVideoIndex:
		return invoke(ctx, name, payload, p.VideoIndex, p.indexFailure(ctx, storage.MediaTypeVideo)), nil
	case NameAudioIngest:
		return invoke(ctx, name, payload, p.AudioIngest, audioIngestError), nil
	case NameAudioAnalyze:
		return invoke(ctx, name, payload, p.AudioAnalyze, analyzeError), nil
	case NameAudioIndex:
		return invoke(ctx, name, payload, p.AudioIndex, p.indexFailure(ctx, storage.MediaTypeAudio)), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownHandler, name)
	}
}

// indexFailure builds the error response of an index handler and announces
// the failed pipeline, as the handler itself would.
func (p *Pipeline) indexFailure(ctx context.Context, mediaType string) func(string, error) models.IndexResponse {
	return func(campaign string, err error) models.IndexResponse {
		resp := indexError(campaign, err)
		p.notify(ctx, mediaType, "", resp)
		return resp
	}
}

func invoke[Req, Resp any](ctx context.Context, name string, payload []byte, handle func(context.Context, Req) Resp, onError func(string, error) Resp) any {
	var req Req
	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return handle(ctx, req)
	}
	if err := json.Unmarshal(trimmed, &req); err != nil {
		decodeErr := &DecodeError{Handler: name, Err: err}
		campaign := payloadCampaign(trimmed)
		return run(ctx, name, func(context.Context) (Resp, error) {
			var zero Resp
			return zero, decodeErr
		}, func(err error) Resp {
			return onError(campaign, err)
		})
	}
	return handle(ctx, req)
}

// payloadCampaign reads the campaign of a payload that failed to decode.
func payloadCampaign(payload []byte) string {
	var probe struct {
		Campaign json.RawMessage `json:"campaign"`
	}
	if err := json.Unmarshal(payload, &probe); err != nil {
		return models.UnknownCampaign
	}
	var campaign string
	if err := json.Unmarshal(probe.Campaign, &campaign); err != nil {
		return models.UnknownCampaign
	}
	return models.CampaignOr(campaign, models.UnknownCampaign)
}
