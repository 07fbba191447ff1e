package main

import (
	"context"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"google.golang.org/grpc"

	"gatekey.org/internal/auth"
	"gatekey.org/internal/events"
	"gatekey.org/internal/httpapi"
	"gatekey.org/internal/obs"
	"gatekey.org/internal/store/memory"
	"gatekey.org/internal/store/pg"
)

var (
	version = "1.0.0"
	commit  = "dev"
)

type stores struct {
	users  auth.UserStore
	roles  auth.RoleStore
	perms  auth.PermissionStore
	tokens auth.RefreshTokenStore
}

func main() {
	obs.Init()
	obs.InitBuildInfo(version, commit)

	signing, err := auth.NewSigningContext(
		os.Getenv("GATEKEY_AUTH_SECRET"),
		envOr("GATEKEY_ISSUER", "gatekey"),
		envOr("GATEKEY_AUDIENCE", "gatekey"),
		envDuration("GATEKEY_ACCESS_TTL_MINUTES", time.Minute, 0),
		envDuration("GATEKEY_REFRESH_TTL_DAYS", 24*time.Hour, 0),
	)
	if err != nil {
		log.Fatalf("signing configuration: %v", err)
	}

	var (
		st    stores
		probe httpapi.ReadyProbe
	)
	if dsn := os.Getenv("GATEKEY_PG_DSN"); dsn != "" {
		pgStore, err := pg.Open(dsn)
		if err != nil {
			log.Fatalf("open db: %v", err)
		}
		defer pgStore.Close()
		st = stores{users: pgStore, roles: pgStore, perms: pgStore, tokens: pgStore}
		probe = httpapi.ReadyProbe{DB: pgStore.DB()}
	} else {
		log.Print("GATEKEY_PG_DSN not set, using in-memory store")
		mem := memory.New()
		st = stores{users: mem, roles: mem, perms: mem, tokens: mem}
		probe = httpapi.ReadyProbe{}
	}

	bus := events.New()
	svc := auth.NewService(signing, st.users, st.roles, st.perms, st.tokens, auth.WithEventPublisher(bus))

	// The permission catalog is code-owned; bring the store up to date before
	// taking traffic.
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	added, err := svc.SyncCatalog(ctx)
	cancel()
	if err != nil {
		log.Fatalf("sync permission catalog: %v", err)
	}
	if added > 0 {
		log.Printf("permission catalog: added %d entries", added)
	}

	api := httpapi.New(probe, version, svc, bus)

	srv := &http.Server{
		Addr:              envOr("GATEKEY_ADDR", ":8080"),
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	var grpcSrv *grpc.Server
	if addr := os.Getenv("GATEKEY_GRPC_ADDR"); addr != "" {
		lis, err := net.Listen("tcp", addr)
		if err != nil {
			log.Fatalf("grpc listen: %v", err)
		}
		grpcSrv = grpc.NewServer()
		httpapi.NewGRPCServer(probe).Register(grpcSrv)
		go func() {
			log.Printf("gRPC health on %s", addr)
			if err := grpcSrv.Serve(lis); err != nil {
				log.Fatalf("grpc serve: %v", err)
			}
		}()
	}

	log.Printf("Starting gatekey-api %s on %s", version, srv.Addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = srv.Shutdown(shutdownCtx)
	if grpcSrv != nil {
		grpcSrv.GracefulStop()
	}
	log.Println("Stopped")
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// envDuration reads an integer environment variable and scales it by unit;
// zero means "use the signing context default".
func envDuration(key string, unit, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		log.Fatalf("invalid %s: %q", key, v)
	}
	return time.Duration(n) * unit
}
