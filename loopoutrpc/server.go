// Package loopoutrpc exposes the loop-out server's SwapCoordinator over an
// HTTP/JSON surface: POST /loop/out to request a swap, GET /loop/out/
// {payment_hash} to poll one. A gRPC service fronted by a grpc-gateway
// reverse proxy would offer the same contract (see DESIGN.md for why the
// .proto/.pb.go generation step is out of scope without running the
// Go/protobuf toolchain); this package implements the same JSON contract
// directly over net/http so the surface itself is complete and testable
// without code generation.
package loopoutrpc

import (
	"encoding/hex"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/lightninglabs/loopout/swapd"
	"github.com/lightninglabs/loopout/swaperrors"
)

// Server is the HTTP handler for the loop-out JSON API.
type Server struct {
	coordinator *swapd.Coordinator
	mux         *http.ServeMux
	checker     *macaroonChecker
}

// New wires coordinator behind the HTTP surface, with prometheus
// instrumentation and, if cfg.MacaroonPath is set, macaroon bearer auth on
// every route.
func New(coordinator *swapd.Coordinator, cfg *Config) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	s := &Server{coordinator: coordinator, mux: http.NewServeMux()}

	var handler http.Handler = http.HandlerFunc(s.route)
	handler = instrument(handler)

	if cfg.MacaroonPath != "" {
		checker, err := newMacaroonChecker(cfg.MacaroonPath)
		if err != nil {
			return nil, swaperrors.Wrap(swaperrors.KindConfigFailure, err)
		}
		handler = checker.middleware(handler)
		s.checker = checker
	}

	s.mux.Handle("/loop/out", handler)
	s.mux.Handle("/loop/out/", handler)
	s.mux.Handle("/metrics", metricsHandler())

	return s, nil
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// BakeAdminMacaroon mints a fresh, time-bounded admin credential clients can
// present to this server, or returns ok=false if the server was configured
// without macaroon auth.
func (s *Server) BakeAdminMacaroon() (hexMac string, ok bool, err error) {
	if s.checker == nil {
		return "", false, nil
	}

	hexMac, err = s.checker.BakeHex()
	if err != nil {
		return "", true, err
	}

	return hexMac, true, nil
}

func (s *Server) route(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.Method == http.MethodPost && r.URL.Path == "/loop/out":
		s.handleNewLoopOut(w, r)

	case r.Method == http.MethodGet && strings.HasPrefix(r.URL.Path, "/loop/out/"):
		s.handleGetLoopOut(w, r)

	default:
		writeError(w, swaperrors.New(swaperrors.KindNotFound, "no such route"))
	}
}

// newLoopOutRequest is the POST /loop/out request body.
type newLoopOutRequest struct {
	AmountSats     int64  `json:"amount_sats"`
	BuyerPubkeyHex string `json:"buyer_pubkey"`
}

func (s *Server) handleNewLoopOut(w http.ResponseWriter, r *http.Request) {
	var req newLoopOutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, swaperrors.NewParam(
			swaperrors.KindInvalidAmount, "amount", "invalid parameter",
		))
		return
	}

	full, err := s.coordinator.NewLoopOut(
		r.Context(), req.BuyerPubkeyHex, btcutilAmount(req.AmountSats),
	)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, swapd.ToResponse(full))
}

func (s *Server) handleGetLoopOut(w http.ResponseWriter, r *http.Request) {
	hashHex := strings.TrimPrefix(r.URL.Path, "/loop/out/")

	hashBytes, err := hex.DecodeString(hashHex)
	if err != nil || len(hashBytes) != 32 {
		writeError(w, swaperrors.NewParam(
			swaperrors.KindInvalidPaymentHash, "payment_hash",
			"invalid parameter",
		))
		return
	}

	var paymentHash [32]byte
	copy(paymentHash[:], hashBytes)

	full, err := s.coordinator.GetLoopOut(r.Context(), paymentHash)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, swapd.ToResponse(full))
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// errorBody is the {"message": ..., "param": ...} shape returned for error
// responses; param is omitted for non-validation kinds.
type errorBody struct {
	Message string `json:"message"`
	Param   string `json:"param,omitempty"`
}

func writeError(w http.ResponseWriter, err error) {
	swapErr, ok := swaperrors.As(err)
	if !ok {
		swapErr = swaperrors.Wrap(swaperrors.KindStorageFailure, err)
	}

	log.Debugf("request failed: %v", swapErr)

	writeJSON(w, swapErr.Kind.HTTPStatus(), errorBody{
		Message: swapErr.Message(),
		Param:   swapErr.Param,
	})
}
