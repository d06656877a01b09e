package main

import (
	"bufio"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"strconv"

	"github.com/google/uuid"

	"accessd/pap"
	"accessd/pdp"
)

// adminRequest is the admin wire protocol's request shape: one JSON object
// per line (newline-delimited), dispatched by Op.
type adminRequest struct {
	Op          string `json:"op"` // admit, get, has, remove, decide
	RequestID   string `json:"request_id,omitempty"`
	SubjectID   string `json:"subject_id,omitempty"`
	EnvelopeHex string `json:"envelope_hex,omitempty"`
	PolicyIDHex string `json:"policy_id_hex,omitempty"`
	Request     string `json:"request,omitempty"` // raw request JSON, for decide
}

type adminResponse struct {
	OK          bool          `json:"ok"`
	RequestID   string        `json:"request_id"`
	Error       string        `json:"error,omitempty"`
	PolicyIDHex string        `json:"policy_id_hex,omitempty"`
	Has         bool          `json:"has,omitempty"`
	Decision    *pdp.Decision `json:"decision,omitempty"`
}

// AdminServer serves the admit/get/has/remove/decide admin protocol over a
// plain TCP listener (the p2p package's raw net.Listen style) rather than a
// generic RPC framework for this internal, fixed-shape protocol.
type AdminServer struct {
	addr   string
	pap    *pap.Engine
	pdp    *pdp.Engine
	logger *slog.Logger
}

// NewAdminServer builds an AdminServer bound to the given engines.
func NewAdminServer(addr string, papEngine *pap.Engine, pdpEngine *pdp.Engine, logger *slog.Logger) *AdminServer {
	return &AdminServer{addr: addr, pap: papEngine, pdp: pdpEngine, logger: logger}
}

// Run listens on s.addr until ctx is cancelled.
func (s *AdminServer) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("admin listen: %w", err)
	}
	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()

	s.logger.Info("admin server listening", "address", s.addr)
	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				return fmt.Errorf("admin accept: %w", err)
			}
		}
		go s.handle(ctx, conn)
	}
}

func (s *AdminServer) handle(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		var req adminRequest
		resp := adminResponse{OK: true}
		if err := json.Unmarshal(scanner.Bytes(), &req); err != nil {
			resp = adminResponse{OK: false, Error: "malformed request: " + err.Error()}
		} else {
			if req.RequestID == "" {
				req.RequestID = uuid.NewString()
			}
			resp = s.dispatch(ctx, req)
			resp.RequestID = req.RequestID
		}
		encoded, err := json.Marshal(resp)
		if err != nil {
			s.logger.Error("encode admin response", "error", err)
			return
		}
		if _, err := conn.Write(append(encoded, '\n')); err != nil {
			return
		}
	}
}

func (s *AdminServer) dispatch(ctx context.Context, req adminRequest) adminResponse {
	switch req.Op {
	case "admit":
		envelope, err := hex.DecodeString(req.EnvelopeHex)
		if err != nil {
			return adminResponse{OK: false, Error: "bad envelope_hex: " + err.Error()}
		}
		id, err := s.pap.AddPolicy(ctx, req.SubjectID, envelope)
		if err != nil {
			return adminResponse{OK: false, Error: err.Error()}
		}
		return adminResponse{OK: true, PolicyIDHex: hex.EncodeToString(id[:])}
	case "get":
		id, err := parsePolicyID(req.PolicyIDHex)
		if err != nil {
			return adminResponse{OK: false, Error: err.Error()}
		}
		if _, err := s.pap.GetPolicy(id); err != nil {
			return adminResponse{OK: false, Error: err.Error()}
		}
		return adminResponse{OK: true, PolicyIDHex: req.PolicyIDHex}
	case "has":
		id, err := parsePolicyID(req.PolicyIDHex)
		if err != nil {
			return adminResponse{OK: false, Error: err.Error()}
		}
		has, err := s.pap.HasPolicy(id)
		if err != nil {
			return adminResponse{OK: false, Error: err.Error()}
		}
		return adminResponse{OK: true, Has: has}
	case "remove":
		id, err := parsePolicyID(req.PolicyIDHex)
		if err != nil {
			return adminResponse{OK: false, Error: err.Error()}
		}
		if err := s.pap.RemovePolicy(id); err != nil {
			return adminResponse{OK: false, Error: err.Error()}
		}
		return adminResponse{OK: true}
	case "decide":
		decision, err := s.pdp.Decide(ctx, []byte(req.Request))
		if err != nil {
			return adminResponse{OK: false, Error: err.Error()}
		}
		return adminResponse{OK: true, Decision: &decision}
	default:
		return adminResponse{OK: false, Error: "unknown op: " + req.Op}
	}
}

func parsePolicyID(idHex string) ([32]byte, error) {
	var id [32]byte
	raw, err := hex.DecodeString(idHex)
	if err != nil || len(raw) != len(id) {
		return id, fmt.Errorf("bad policy_id_hex (want %d hex bytes)", len(id))
	}
	copy(id[:], raw)
	return id, nil
}

// httpAddrFor derives the metrics/health HTTP address from the admin TCP
// address by shifting its port by one, so a single ListenAddress config
// field can drive both listeners.
func httpAddrFor(adminAddr string) string {
	host, portStr, err := net.SplitHostPort(adminAddr)
	if err != nil {
		return ":7403"
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return ":7403"
	}
	return net.JoinHostPort(host, strconv.Itoa(port+1))
}
