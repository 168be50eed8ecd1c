// service.go - HTTP surface of the nullifier core.
//
// Every payload crossing this boundary is JSON with hex-encoded binary
// fields. Handlers translate domain sentinels onto HTTP statuses: a
// duplicate nullifier is 409, an epoch or witness-version mismatch is 422,
// malformed input is 400, and a failed proof verification is 400 with a
// machine-readable reason.

package service

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"privcore/internal/accumulator"
	"privcore/internal/nullifier"
	"privcore/internal/proofbackend"
	"privcore/internal/registry"
	"privcore/internal/resonance"
	"privcore/internal/symbol"
)

// Service exposes the nullifier engine, the membership accumulator, and the
// resonance comparator over HTTP.
type Service struct {
	engine *nullifier.Engine
	acc    *accumulator.Accumulator
	cmp    *resonance.Comparator
	log    zerolog.Logger

	membership *MembershipProver

	healthChecks map[string]func() error
}

// Option configures a Service.
type Option func(*Service)

// WithLogger attaches a structured logger.
func WithLogger(log zerolog.Logger) Option {
	return func(s *Service) { s.log = log }
}

// WithMembershipProver enables proof-bearing membership endpoints.
func WithMembershipProver(mp *MembershipProver) Option {
	return func(s *Service) { s.membership = mp }
}

// WithHealthCheck registers a named dependency probe for /healthz.
func WithHealthCheck(name string, probe func() error) Option {
	return func(s *Service) { s.healthChecks[name] = probe }
}

// New assembles the service.
func New(engine *nullifier.Engine, acc *accumulator.Accumulator, cmp *resonance.Comparator, opts ...Option) *Service {
	s := &Service{
		engine:       engine,
		acc:          acc,
		cmp:          cmp,
		log:          zerolog.Nop(),
		healthChecks: make(map[string]func() error),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Router builds the chi router for the service.
func (s *Service) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)

	r.Route("/v1", func(r chi.Router) {
		r.Post("/nullifier/generate", s.handleGenerate)
		r.Post("/nullifier/verify", s.handleVerify)
		r.Post("/nullifier/prove", s.handleProveOwnership)
		r.Post("/nullifier/verify-proof", s.handleVerifyOwnership)

		r.Post("/membership/add", s.handleMembershipAdd)
		r.Post("/membership/remove", s.handleMembershipRemove)
		r.Get("/membership/commitment", s.handleCommitment)
		r.Post("/membership/prove", s.handleMembershipProve)
		r.Post("/membership/verify", s.handleMembershipVerify)

		r.Post("/resonance/compare", s.handleResonanceCompare)
		r.Post("/resonance/verify", s.handleResonanceVerify)
	})
	return r
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Service) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Error().Err(err).Msg("response encoding failed")
	}
}

func (s *Service) writeError(w http.ResponseWriter, status int, err error) {
	s.writeJSON(w, status, errorResponse{Error: err.Error()})
}

// writeDomainError maps domain sentinels onto HTTP statuses.
func (s *Service) writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, registry.ErrDuplicateNullifier):
		s.writeError(w, http.StatusConflict, err)
	case errors.Is(err, nullifier.ErrEpochOutOfRange),
		errors.Is(err, accumulator.ErrStaleWitness):
		s.writeError(w, http.StatusUnprocessableEntity, err)
	case errors.Is(err, accumulator.ErrAlreadyMember),
		errors.Is(err, accumulator.ErrMembershipNotFound),
		errors.Is(err, accumulator.ErrVersionUnavailable):
		s.writeError(w, http.StatusConflict, err)
	case errors.Is(err, proofbackend.ErrProofVerificationFailed),
		errors.Is(err, nullifier.ErrInvalidNonce),
		errors.Is(err, resonance.ErrInvalidThreshold):
		s.writeError(w, http.StatusBadRequest, err)
	case errors.Is(err, nullifier.ErrProofsDisabled),
		errors.Is(err, resonance.ErrProofsDisabled):
		s.writeError(w, http.StatusNotImplemented, err)
	default:
		s.log.Error().Err(err).Msg("internal error")
		s.writeError(w, http.StatusInternalServerError, err)
	}
}

func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func (s *Service) handleHealth(w http.ResponseWriter, r *http.Request) {
	type probeResult struct {
		Status string `json:"status"`
		Error  string `json:"error,omitempty"`
	}
	results := make(map[string]probeResult, len(s.healthChecks))
	healthy := true
	for name, probe := range s.healthChecks {
		if err := probe(); err != nil {
			results[name] = probeResult{Status: "unhealthy", Error: err.Error()}
			healthy = false
		} else {
			results[name] = probeResult{Status: "healthy"}
		}
	}
	status := http.StatusOK
	overall := "healthy"
	if !healthy {
		status = http.StatusServiceUnavailable
		overall = "unhealthy"
	}
	s.writeJSON(w, status, map[string]any{"status": overall, "components": results})
}

type generateRequest struct {
	Context string `json:"context"`
	Action  string `json:"action"`
	Nonce   string `json:"nonce,omitempty"`
}

type generateResponse struct {
	Nullifier string `json:"nullifier"`
	Nonce     string `json:"nonce"`
	Epoch     uint64 `json:"epoch"`
}

func (s *Service) handleGenerate(w http.ResponseWriter, r *http.Request) {
	var req generateRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.Context == "" || req.Action == "" {
		s.writeError(w, http.StatusBadRequest, errors.New("context and action are required"))
		return
	}
	var nonce []byte
	if req.Nonce != "" {
		var err error
		if nonce, err = hex.DecodeString(req.Nonce); err != nil {
			s.writeError(w, http.StatusBadRequest, errors.New("nonce must be hex"))
			return
		}
	}
	n, usedNonce, epoch, err := s.engine.Generate(req.Context, req.Action, nonce)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, generateResponse{
		Nullifier: n.String(),
		Nonce:     hex.EncodeToString(usedNonce),
		Epoch:     epoch,
	})
}

type verifyRequest struct {
	Nullifier string `json:"nullifier"`
	Context   string `json:"context"`
	Epoch     uint64 `json:"epoch"`
}

func (s *Service) handleVerify(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	n, err := nullifier.Parse(req.Nullifier)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := s.engine.VerifyAndRegister(r.Context(), n, req.Context, req.Epoch); err != nil {
		s.writeDomainError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "registered"})
}

type proveOwnershipRequest struct {
	Nullifier string `json:"nullifier"`
	Context   string `json:"context"`
	Action    string `json:"action"`
	Nonce     string `json:"nonce"`
	Epoch     uint64 `json:"epoch"`
}

func (s *Service) handleProveOwnership(w http.ResponseWriter, r *http.Request) {
	var req proveOwnershipRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	n, err := nullifier.Parse(req.Nullifier)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	nonce, err := hex.DecodeString(req.Nonce)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, errors.New("nonce must be hex"))
		return
	}
	env, err := s.engine.ProveOwnership(r.Context(), n, req.Context, req.Action, nonce, req.Epoch)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, env)
}

func (s *Service) handleVerifyOwnership(w http.ResponseWriter, r *http.Request) {
	var env proofbackend.Envelope
	if err := decodeBody(r, &env); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := s.engine.VerifyOwnership(&env); err != nil {
		s.writeDomainError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "valid"})
}

type membershipMutation struct {
	Symbol string `json:"symbol"`
}

type membershipMutationResponse struct {
	Version  uint64 `json:"version"`
	PrevRoot string `json:"prev_root"`
	NewRoot  string `json:"new_root"`
}

func (s *Service) handleMembershipAdd(w http.ResponseWriter, r *http.Request) {
	s.handleMembershipChange(w, r, s.acc.Add)
}

func (s *Service) handleMembershipRemove(w http.ResponseWriter, r *http.Request) {
	s.handleMembershipChange(w, r, s.acc.Remove)
}

func (s *Service) handleMembershipChange(w http.ResponseWriter, r *http.Request, mutate func(symbol.Symbol) (*accumulator.UpdateProof, error)) {
	var req membershipMutation
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	sym, err := symbol.Parse(req.Symbol)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	up, err := mutate(sym)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, membershipMutationResponse{
		Version:  up.Version,
		PrevRoot: hex.EncodeToString(up.PrevRoot[:]),
		NewRoot:  hex.EncodeToString(up.NewRoot[:]),
	})
}

func (s *Service) handleCommitment(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.acc.Current())
}

type membershipProveRequest struct {
	Symbol string `json:"symbol"`
	// Version selects a historical commitment; zero value means current.
	Version *uint64 `json:"version,omitempty"`
}

type membershipProveResponse struct {
	Commitment accumulator.Commitment `json:"commitment"`
	Witness    *accumulator.Witness   `json:"witness"`
	Proof      *proofbackend.Envelope `json:"proof,omitempty"`
}

func (s *Service) handleMembershipProve(w http.ResponseWriter, r *http.Request) {
	var req membershipProveRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	sym, err := symbol.Parse(req.Symbol)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}

	var (
		wit *accumulator.Witness
		cm  accumulator.Commitment
	)
	if req.Version != nil {
		if cm, err = s.acc.CommitmentAt(*req.Version); err == nil {
			wit, err = s.acc.ProveMembershipAt(sym, *req.Version)
		}
	} else {
		cm = s.acc.Current()
		wit, err = s.acc.ProveMembership(sym)
	}
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	resp := membershipProveResponse{Commitment: cm, Witness: wit}
	if s.membership != nil {
		env, err := s.membership.Prove(r.Context(), cm, sym, wit)
		if err != nil {
			s.writeDomainError(w, err)
			return
		}
		resp.Proof = env
	}
	s.writeJSON(w, http.StatusOK, resp)
}

type membershipVerifyRequest struct {
	// Either a plain witness check (symbol + witness) or a zero-knowledge
	// envelope check; the envelope wins when both are present.
	Symbol     string                  `json:"symbol,omitempty"`
	Commitment *accumulator.Commitment `json:"commitment,omitempty"`
	Witness    *accumulator.Witness    `json:"witness,omitempty"`
	Proof      *proofbackend.Envelope  `json:"proof,omitempty"`
}

func (s *Service) handleMembershipVerify(w http.ResponseWriter, r *http.Request) {
	var req membershipVerifyRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}

	if req.Proof != nil {
		if s.membership == nil {
			s.writeError(w, http.StatusNotImplemented, errors.New("membership proofs not configured"))
			return
		}
		if err := s.membership.Verify(s.acc, req.Proof); err != nil {
			s.writeDomainError(w, err)
			return
		}
		s.writeJSON(w, http.StatusOK, map[string]string{"status": "valid"})
		return
	}

	if req.Commitment == nil || req.Witness == nil || req.Symbol == "" {
		s.writeError(w, http.StatusBadRequest, errors.New("symbol, commitment, and witness are required"))
		return
	}
	sym, err := symbol.Parse(req.Symbol)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	ok, err := accumulator.Verify(*req.Commitment, sym, req.Witness)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	if !ok {
		s.writeError(w, http.StatusBadRequest, errors.New("witness does not open the commitment"))
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "valid"})
}

type resonanceCompareRequest struct {
	SymbolA   string  `json:"symbol_a"`
	SymbolB   string  `json:"symbol_b"`
	Policy    string  `json:"policy,omitempty"`
	Threshold float64 `json:"threshold,omitempty"`
}

func (s *Service) handleResonanceCompare(w http.ResponseWriter, r *http.Request) {
	var req resonanceCompareRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	a, err := symbol.Parse(req.SymbolA)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	b, err := symbol.Parse(req.SymbolB)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	policy := resonance.PolicyThreshold
	switch req.Policy {
	case "", "threshold":
	case "raw":
		policy = resonance.PolicyRaw
	default:
		s.writeError(w, http.StatusBadRequest, errors.New("policy must be threshold or raw"))
		return
	}
	res, err := s.cmp.Compare(r.Context(), a, b, policy, req.Threshold)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, res)
}

func (s *Service) handleResonanceVerify(w http.ResponseWriter, r *http.Request) {
	var env proofbackend.Envelope
	if err := decodeBody(r, &env); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := s.cmp.VerifyThreshold(&env); err != nil {
		s.writeDomainError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "valid"})
}
