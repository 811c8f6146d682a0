package httpc

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"adqa/internal/domain"
	"adqa/internal/jsondoc"
)

// Candidate upload endpoints, tried in turn. Staging environments have
// shipped both shapes at different times.
var UploadEndpoints = []string{"/pictures.json", "/uploads/pictures.json"}

// Multipart field names tried per endpoint, after the raw-body attempt.
var uploadFields = []string{"file", "pictures[]"}

// UploadOptions override the client defaults for one upload.
type UploadOptions struct {
	Endpoints  []string
	APIVersion string
	Token      string
	FCMToken   string
}

// Upload pushes a picture through every encoding/endpoint combination until
// one returns 2xx, then extracts the picture id from whichever shape the
// server chose to answer with.
func (c *Client) Upload(ctx context.Context, file string, opts UploadOptions) (int, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		return 0, &domain.NetworkError{Op: "upload", URL: file, Err: err}
	}
	endpoints := opts.Endpoints
	if len(endpoints) == 0 {
		endpoints = UploadEndpoints
	}

	var last Response
	for _, endpoint := range endpoints {
		// raw body first: Content-Type from MIME sniff
		resp, err := c.uploadRaw(ctx, endpoint, filepath.Base(file), data, opts)
		if err == nil && resp.OK() {
			return pictureID(resp.Doc)
		}
		if err == nil {
			last = resp
		}

		for _, field := range uploadFields {
			resp, err = c.uploadMultipart(ctx, endpoint, field, filepath.Base(file), data, opts)
			if err == nil && resp.OK() {
				return pictureID(resp.Doc)
			}
			if err == nil {
				last = resp
			}
		}
	}
	return 0, &domain.UnexpectedStatus{
		Endpoint: "picture upload",
		Want:     []int{200, 201},
		Got:      last.Status,
		Body:     preview(last.Raw),
	}
}

func (c *Client) uploadRaw(ctx context.Context, endpoint, name string, data []byte, opts UploadOptions) (Response, error) {
	return c.rawPost(ctx, endpoint, http.DetectContentType(data), data, name, opts)
}

func (c *Client) uploadMultipart(ctx context.Context, endpoint, field, name string, data []byte, opts UploadOptions) (Response, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile(field, name)
	if err != nil {
		return Response{}, &domain.NetworkError{Op: "upload", URL: endpoint, Err: err}
	}
	if _, err := part.Write(data); err != nil {
		return Response{}, &domain.NetworkError{Op: "upload", URL: endpoint, Err: err}
	}
	if opts.FCMToken != "" {
		_ = mw.WriteField("fcm_token", opts.FCMToken)
	}
	if err := mw.Close(); err != nil {
		return Response{}, &domain.NetworkError{Op: "upload", URL: endpoint, Err: err}
	}
	return c.rawPost(ctx, endpoint, mw.FormDataContentType(), buf.Bytes(), name, opts)
}

// rawPost bypasses the JSON marshaling path but keeps URL resolution, auth,
// pacing, and envelope parsing identical to Do.
func (c *Client) rawPost(ctx context.Context, endpoint, contentType string, body []byte, name string, opts UploadOptions) (Response, error) {
	query := map[string]string{}
	if opts.APIVersion != "" {
		query["api_version"] = opts.APIVersion
	}
	target, err := c.resolve(endpoint, query)
	if err != nil {
		return Response{}, &domain.NetworkError{Op: "POST", URL: endpoint, Err: err}
	}

	ctx, cancel := context.WithTimeout(ctx, 60*time.Second)
	defer cancel()

	hreq, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(body))
	if err != nil {
		return Response{}, &domain.NetworkError{Op: "POST", URL: target, Err: err}
	}
	hreq.Header.Set("Content-Type", contentType)
	switch {
	case opts.Token != "":
		hreq.Header.Set("Authorization", "Bearer "+opts.Token)
	case c.Tokens != nil:
		value, typ, err := c.Tokens.Token(ctx)
		if err != nil {
			return Response{}, err
		}
		if value != "" {
			hreq.Header.Set("Authorization", typ+" "+value)
		}
	}
	if opts.FCMToken != "" {
		hreq.Header.Set("X-FCM-Token", opts.FCMToken)
	}

	if c.Limiter != nil {
		if err := c.Limiter.Wait(ctx); err != nil {
			return Response{}, &domain.NetworkError{Op: "POST", URL: target, Err: err}
		}
	}

	start := time.Now()
	resp, err := c.send(hreq)
	elapsed := time.Since(start)
	if err != nil {
		return Response{}, &domain.NetworkError{Op: "POST", URL: target, Err: err}
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)

	c.Log.Info("upload",
		"path", endpoint,
		"file", name,
		"status", resp.StatusCode,
		"elapsed", elapsed.Round(time.Millisecond).String(),
	)
	return Response{Status: resp.StatusCode, Doc: jsondoc.Parse(raw), Elapsed: elapsed, Raw: raw}, nil
}

// pictureID probes the known key shapes a successful upload has answered
// with across api versions.
func pictureID(doc jsondoc.Doc) (int, error) {
	if id, ok := doc.FirstInt(
		"picture_id",
		"id",
		"picture.id",
		"picture.picture_id",
		"image.id",
		"photo.id",
	); ok && id > 0 {
		return id, nil
	}
	for _, key := range []string{"pictures", "data", "items", "results"} {
		arr, ok := doc.Array(key)
		if !ok || len(arr) == 0 {
			continue
		}
		first := jsondoc.From(arr[0])
		if id, ok := first.FirstInt("picture_id", "id"); ok && id > 0 {
			return id, nil
		}
		if id, ok := jsondoc.CoerceInt(arr[0]); ok && id > 0 {
			return id, nil
		}
	}
	return 0, fmt.Errorf("upload response carried no recognizable picture id")
}
