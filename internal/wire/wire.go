// Package wire encodes and decodes event batches for the collection
// endpoint. JSON is the default; CBOR and gzip are opt-in for senders and
// always accepted by the collector.
package wire

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"reflect"
	"strings"

	"github.com/fxamacker/cbor/v2"
	"github.com/klauspost/compress/gzip"

	"github.com/PratikDhanave/event-pipeline/internal/models"
)

const (
	ContentTypeJSON = "application/json"
	ContentTypeCBOR = "application/cbor"
	EncodingGzip    = "gzip"
)

// Encoding selects the body format of an outgoing batch.
type Encoding string

const (
	JSON Encoding = "json"
	CBOR Encoding = "cbor"
)

// ParseEncoding maps a config string to an Encoding. Empty means JSON.
func ParseEncoding(s string) (Encoding, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "json":
		return JSON, nil
	case "cbor":
		return CBOR, nil
	default:
		return "", fmt.Errorf("unknown encoding %q", s)
	}
}

var (
	cborEnc cbor.EncMode
	cborDec cbor.DecMode
)

func init() {
	var err error
	cborEnc, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("wire: CBOR encoder initialization failed: " + err.Error())
	}
	// Nested property maps must come back as map[string]any so they
	// re-encode to JSON in the store.
	cborDec, err = cbor.DecOptions{
		DefaultMapType: reflect.TypeOf(map[string]interface{}(nil)),
	}.DecMode()
	if err != nil {
		panic("wire: CBOR decoder initialization failed: " + err.Error())
	}
}

// Payload is an encoded request body plus the headers describing it.
type Payload struct {
	Body            []byte
	ContentType     string
	ContentEncoding string
}

// Encode serializes batch. When compress is set the body is gzipped and
// ContentEncoding is "gzip".
func Encode(batch models.EventBatch, enc Encoding, compress bool) (Payload, error) {
	var (
		body []byte
		err  error
		p    Payload
	)
	switch enc {
	case CBOR:
		body, err = cborEnc.Marshal(batch)
		p.ContentType = ContentTypeCBOR
	case JSON, "":
		body, err = json.Marshal(batch)
		p.ContentType = ContentTypeJSON
	default:
		return Payload{}, fmt.Errorf("unknown encoding %q", enc)
	}
	if err != nil {
		return Payload{}, fmt.Errorf("encoding batch: %w", err)
	}

	if compress {
		var buf bytes.Buffer
		zw := gzip.NewWriter(&buf)
		if _, err := zw.Write(body); err != nil {
			return Payload{}, fmt.Errorf("compressing batch: %w", err)
		}
		if err := zw.Close(); err != nil {
			return Payload{}, fmt.Errorf("compressing batch: %w", err)
		}
		body = buf.Bytes()
		p.ContentEncoding = EncodingGzip
	}

	p.Body = body
	return p, nil
}

// Decode reads a batch encoded per the request's Content-Type and
// Content-Encoding headers. An empty content type is treated as JSON.
func Decode(r io.Reader, contentType, contentEncoding string) (models.EventBatch, error) {
	var batch models.EventBatch

	switch strings.ToLower(strings.TrimSpace(contentEncoding)) {
	case "", "identity":
	case EncodingGzip:
		zr, err := gzip.NewReader(r)
		if err != nil {
			return batch, fmt.Errorf("opening gzip body: %w", err)
		}
		defer zr.Close()
		r = zr
	default:
		return batch, fmt.Errorf("unsupported content encoding %q", contentEncoding)
	}

	mediaType := ContentTypeJSON
	if contentType != "" {
		mt, _, err := mime.ParseMediaType(contentType)
		if err != nil {
			return batch, fmt.Errorf("parsing content type: %w", err)
		}
		mediaType = mt
	}

	switch mediaType {
	case ContentTypeJSON, "text/plain":
		// text/plain is what browsers send for beacons without a typed blob.
		if err := json.NewDecoder(r).Decode(&batch); err != nil {
			return batch, fmt.Errorf("decoding JSON batch: %w", err)
		}
	case ContentTypeCBOR:
		if err := cborDec.NewDecoder(r).Decode(&batch); err != nil {
			return batch, fmt.Errorf("decoding CBOR batch: %w", err)
		}
	default:
		return batch, fmt.Errorf("unsupported content type %q", mediaType)
	}
	return batch, nil
}
