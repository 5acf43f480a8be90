// Package prover talks to the coprocessor's proving service.
package prover

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	errorsmod "cosmossdk.io/errors"
	"github.com/gojek/heimdall/v7"
	"github.com/gojek/heimdall/v7/httpclient"
	"github.com/rs/zerolog"

	"github.com/yourorg/zkmint/pkg/errs"
	"github.com/yourorg/zkmint/pkg/witness"
)

// Proof is one proof/public-inputs pair, base64 on the wire.
type Proof struct {
	Proof  string `json:"proof"`
	Inputs string `json:"inputs"`
}

// Response is the proving service answer: the program proof over the
// authorization message and the domain proof over the state root it used.
type Response struct {
	Program Proof `json:"program"`
	Domain  Proof `json:"domain"`
}

// Decoded is a Proof with both halves decoded.
type Decoded struct {
	Proof  []byte
	Inputs []byte
}

// Artifact is a decoded Response. It is single use.
type Artifact struct {
	Program Decoded
	Domain  Decoded
}

func (p Proof) decode(what string) (Decoded, error) {
	proof, err := base64.StdEncoding.DecodeString(p.Proof)
	if err != nil {
		return Decoded{}, errorsmod.Wrapf(errs.ErrDecode, "%s proof: %v", what, err)
	}
	inputs, err := base64.StdEncoding.DecodeString(p.Inputs)
	if err != nil {
		return Decoded{}, errorsmod.Wrapf(errs.ErrDecode, "%s inputs: %v", what, err)
	}
	if len(proof) == 0 || len(inputs) == 0 {
		return Decoded{}, errorsmod.Wrapf(errs.ErrDecode, "%s proof is empty", what)
	}
	return Decoded{Proof: proof, Inputs: inputs}, nil
}

// Decode base64-decodes both pairs.
func (r *Response) Decode() (*Artifact, error) {
	program, err := r.Program.decode("program")
	if err != nil {
		return nil, err
	}
	domain, err := r.Domain.decode("domain")
	if err != nil {
		return nil, err
	}
	return &Artifact{Program: program, Domain: domain}, nil
}

// Encode is the inverse of Decode.
func Encode(a *Artifact) *Response {
	enc := base64.StdEncoding.EncodeToString
	return &Response{
		Program: Proof{Proof: enc(a.Program.Proof), Inputs: enc(a.Program.Inputs)},
		Domain:  Proof{Proof: enc(a.Domain.Proof), Inputs: enc(a.Domain.Inputs)},
	}
}

type proveRequest struct {
	Args witness.Request `json:"args"`
}

// Client is the HTTP client of a remote proving service.
type Client struct {
	base   string
	doer   heimdall.Doer
	logger zerolog.Logger
}

// NewClient returns a client for the service at base. Each Prove is a
// single POST; a failed request waits for the next cycle.
func NewClient(base string, timeout time.Duration, logger zerolog.Logger) *Client {
	doer := httpclient.NewClient(
		httpclient.WithHTTPTimeout(timeout),
		httpclient.WithRetryCount(0),
	)
	return &Client{
		base:   strings.TrimRight(base, "/"),
		doer:   doer,
		logger: logger.With().Str("component", "prover").Logger(),
	}
}

// Prove asks the controller registered under appID for a proof of req.
func (c *Client) Prove(ctx context.Context, appID string, req witness.Request) (*Response, error) {
	body, err := json.Marshal(proveRequest{Args: req})
	if err != nil {
		return nil, err
	}
	endpoint := fmt.Sprintf("%s/api/registry/controller/%s/prove", c.base, url.PathEscape(appID))

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, errorsmod.Wrapf(errs.ErrConfiguration, "proving service url: %v", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	c.logger.Debug().Str("app_id", appID).RawJSON("request", body).Msg("posting proof request")
	res, err := c.doer.Do(httpReq)
	if res != nil {
		defer res.Body.Close()
	}
	if err != nil {
		return nil, errorsmod.Wrapf(errs.ErrProvingService, "POST %s: %v", endpoint, err)
	}

	raw, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, errorsmod.Wrapf(errs.ErrProvingService, "read response: %v", err)
	}
	if res.StatusCode != http.StatusOK {
		return nil, errorsmod.Wrapf(errs.ErrProvingService, "POST %s: %s: %s", endpoint, res.Status, bytes.TrimSpace(raw))
	}

	var out Response
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, errorsmod.Wrapf(errs.ErrDecode, "proving service response: %v", err)
	}
	return &out, nil
}
