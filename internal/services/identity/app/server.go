// Package server assembles and hosts the identity service: the member
// store, ceremony orchestrator, token manager, and admission workflow,
// behind a gRPC endpoint with health reporting.
package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"os"
	"path/filepath"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	grpc_health_v1 "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/haven-sh/haven/internal/services/identity/account"
	"github.com/haven-sh/haven/internal/services/identity/admission"
	"github.com/haven-sh/haven/internal/services/identity/challenge"
	"github.com/haven-sh/haven/internal/services/identity/passkey"
	"github.com/haven-sh/haven/internal/services/identity/store"
	"github.com/haven-sh/haven/internal/services/identity/token"
)

// Server hosts the identity service.
type Server struct {
	listener   net.Listener
	grpcServer *grpc.Server
	health     *health.Server

	members *store.Store
	tokens  *token.Store

	// Account, Admission, and Passkeys are the assembled application
	// services, exposed for the routing layer and for embedding.
	Account   *account.Service
	Admission *admission.Service
	Passkeys  *passkey.Service
	Tokens    *token.Manager
}

// New creates a configured identity server listening on the provided port.
func New(port int) (*Server, error) {
	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return nil, fmt.Errorf("listen on port %d: %w", port, err)
	}
	srv, err := assemble()
	if err != nil {
		_ = listener.Close()
		return nil, err
	}
	srv.listener = listener

	grpcServer := grpc.NewServer()
	healthServer := health.NewServer()
	grpc_health_v1.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
	healthServer.SetServingStatus("identity.v1.IdentityService", grpc_health_v1.HealthCheckResponse_SERVING)
	srv.grpcServer = grpcServer
	srv.health = healthServer
	return srv, nil
}

// assemble builds the application services from environment configuration.
func assemble() (*Server, error) {
	members, err := openMemberStore()
	if err != nil {
		return nil, err
	}

	passkeyCfg := passkey.LoadConfigFromEnv()
	challenges := challenge.NewRegistry(passkeyCfg.ChallengeTTL)
	passkeys := passkey.New(members, challenges, passkeyCfg)

	tokenStore, err := openTokenStore()
	if err != nil {
		return nil, err
	}
	tokens, err := token.NewManager(tokenStore, token.LoadConfigFromEnv())
	if err != nil {
		_ = tokenStore.Close()
		return nil, err
	}

	return &Server{
		members:   members,
		tokens:    tokenStore,
		Account:   account.New(members, passkeys, tokens),
		Admission: admission.New(members, passkeys, admission.LoadConfigFromEnv()),
		Passkeys:  passkeys,
		Tokens:    tokens,
	}, nil
}

// Addr returns the listener address for the identity server.
func (s *Server) Addr() string {
	if s == nil || s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Run creates and serves an identity server until the context ends.
func Run(ctx context.Context, port int) error {
	srv, err := New(port)
	if err != nil {
		return err
	}
	return srv.Serve(ctx)
}

// Serve starts the identity server and blocks until it stops or the
// context ends.
func (s *Server) Serve(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	defer s.closeStore()

	log.Printf("identity server listening at %v", s.listener.Addr())
	serveErr := make(chan error, 1)
	go func() {
		serveErr <- s.grpcServer.Serve(s.listener)
	}()

	handleErr := func(err error) error {
		if err == nil || errors.Is(err, grpc.ErrServerStopped) {
			return nil
		}
		return fmt.Errorf("serve gRPC: %w", err)
	}

	select {
	case <-ctx.Done():
		if s.health != nil {
			s.health.Shutdown()
		}
		s.grpcServer.GracefulStop()
		return handleErr(<-serveErr)
	case err := <-serveErr:
		return handleErr(err)
	}
}

func openMemberStore() (*store.Store, error) {
	path := strings.TrimSpace(os.Getenv("HAVEN_IDENTITY_MEMBERS_PATH"))
	if path == "" {
		path = filepath.Join("data", "members.json")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create storage dir: %w", err)
		}
	}
	members, err := store.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open member store: %w", err)
	}
	return members, nil
}

func openTokenStore() (*token.Store, error) {
	path := strings.TrimSpace(os.Getenv("HAVEN_IDENTITY_DB_PATH"))
	if path == "" {
		path = filepath.Join("data", "identity.db")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create storage dir: %w", err)
		}
	}
	tokenStore, err := token.OpenStore(path)
	if err != nil {
		return nil, fmt.Errorf("open token store: %w", err)
	}
	return tokenStore, nil
}

func (s *Server) closeStore() {
	if s == nil {
		return
	}
	if s.tokens != nil {
		if err := s.tokens.Close(); err != nil {
			log.Printf("close token store: %v", err)
		}
	}
}
