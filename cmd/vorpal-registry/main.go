// Package main provides the vorpal-registry entry point: the storage
// plane serving Archive and Artifact RPCs over TLS.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"google.golang.org/grpc"

	archivegrpc "github.com/vorpalbuild/vorpal/pkg/api/archive"
	artifactgrpc "github.com/vorpalbuild/vorpal/pkg/api/artifactsvc"
	"github.com/vorpalbuild/vorpal/pkg/authn"
	"github.com/vorpalbuild/vorpal/pkg/logging"
	"github.com/vorpalbuild/vorpal/pkg/notary"
	"github.com/vorpalbuild/vorpal/pkg/registry/backend/local"
	"github.com/vorpalbuild/vorpal/pkg/registry/backend/s3"
	"github.com/vorpalbuild/vorpal/pkg/registry/server"
	"github.com/vorpalbuild/vorpal/pkg/store"
	"github.com/vorpalbuild/vorpal/pkg/transport"
)

var rootCmd = &cobra.Command{
	Use:   "vorpal-registry",
	Short: "Serve the Vorpal registry's Archive and Artifact services",
	RunE:  run,
}

func init() {
	rootCmd.Flags().Int("port", 23151, "port to listen on")
	rootCmd.Flags().String("store", "/var/lib/vorpal", "content store root directory")
	rootCmd.Flags().String("backend", "local", "storage backend: local or s3")
	rootCmd.Flags().String("s3-bucket", "", "s3 bucket name (backend=s3)")
	rootCmd.Flags().String("s3-region", "us-east-1", "s3 region (backend=s3)")
	rootCmd.Flags().String("s3-endpoint", "", "s3-compatible endpoint override (backend=s3)")
	rootCmd.Flags().Duration("check-cache-ttl", server.DefaultCheckCacheTTL, "Archive.Check existence-cache TTL, 0 disables caching")
	rootCmd.Flags().String("oidc-issuer", "", "OIDC issuer for bearer-token verification, empty disables auth")
	rootCmd.Flags().String("oidc-audience", "vorpal-registry", "expected OIDC audience")

	_ = viper.BindPFlags(rootCmd.Flags())
	viper.SetEnvPrefix("VORPAL_REGISTRY")
	viper.AutomaticEnv()
}

func run(_ *cobra.Command, _ []string) error {
	log := logging.New()
	ctx := context.Background()

	st := store.New(viper.GetString("store"))

	if _, err := os.Stat(st.CAPath()); os.IsNotExist(err) {
		log.Info("registry: bootstrapping notary key material")
		boot, err := notary.GenerateBootstrap()
		if err != nil {
			return err
		}
		if err := notary.WriteBootstrap(st.KeyDir(), boot); err != nil {
			return err
		}
	}

	id, err := transport.LoadIdentity(st.KeyDir())
	if err != nil {
		return err
	}

	var validator *authn.OidcValidator
	if issuer := viper.GetString("oidc-issuer"); issuer != "" {
		validator, err = authn.NewOidcValidator(ctx, issuer, viper.GetString("oidc-audience"))
		if err != nil {
			return err
		}
	}

	grpcServer, err := transport.NewServer(id,
		grpc.UnaryInterceptor(authn.UnaryServerInterceptor(validator)),
		grpc.StreamInterceptor(authn.StreamServerInterceptor(validator)),
	)
	if err != nil {
		return err
	}

	switch viper.GetString("backend") {
	case "s3":
		s3Backend, err := s3.New(ctx, s3.Config{
			Bucket:         viper.GetString("s3-bucket"),
			Region:         viper.GetString("s3-region"),
			Endpoint:       viper.GetString("s3-endpoint"),
			ForcePathStyle: viper.GetString("s3-endpoint") != "",
		})
		if err != nil {
			return err
		}
		archivegrpc.RegisterArchiveServiceServer(grpcServer, server.NewArchiveServer(s3Backend, viper.GetDuration("check-cache-ttl"), log))
		artifactgrpc.RegisterArtifactServiceServer(grpcServer, server.NewArtifactServer(s3Backend, log))
	default:
		localBackend := local.New(st)
		archivegrpc.RegisterArchiveServiceServer(grpcServer, server.NewArchiveServer(localBackend, viper.GetDuration("check-cache-ttl"), log))
		artifactgrpc.RegisterArtifactServiceServer(grpcServer, server.NewArtifactServer(localBackend, log))
	}

	listener, err := transport.Listen(viper.GetInt("port"))
	if err != nil {
		return err
	}

	log.WithField("port", viper.GetInt("port")).Info("registry: listening")
	return grpcServer.Serve(listener)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
