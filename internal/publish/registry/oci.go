package registry

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/go-containerregistry/pkg/authn"
	"github.com/google/go-containerregistry/pkg/crane"
	"github.com/google/go-containerregistry/pkg/name"
	v1 "github.com/google/go-containerregistry/pkg/v1"
	"github.com/google/go-containerregistry/pkg/v1/empty"
	"github.com/google/go-containerregistry/pkg/v1/mutate"
	"github.com/google/go-containerregistry/pkg/v1/remote"

	"github.com/felixgeelhaar/releasekit/internal/errors"
	"github.com/felixgeelhaar/releasekit/internal/log"
	"github.com/felixgeelhaar/releasekit/internal/version"
)

// Labels set on every published package image config.
const (
	LabelTitle   = "org.opencontainers.image.title"
	LabelVersion = "org.opencontainers.image.version"
	LabelCreated = "org.opencontainers.image.created"
)

// OCIConfig configures the OCI registry publisher.
type OCIConfig struct {
	// Repository is the prefix packages are pushed under, e.g.
	// ghcr.io/acme/packages. A package "@acme/widget" at 1.2.0 becomes
	// ghcr.io/acme/packages/acme/widget:1.2.0.
	Repository string
	Insecure   bool
	Keychain   authn.Keychain
	UserAgent  string
	Retry      Retry
}

// OCI publishes package directories as single-layer OCI artifacts.
type OCI struct {
	cfg    OCIConfig
	logger *log.Logger
	now    func() time.Time

	authOnce sync.Once
	authErr  error
}

// NewOCI creates an OCI publisher.
func NewOCI(cfg OCIConfig, logger *log.Logger) *OCI {
	if cfg.Keychain == nil {
		cfg.Keychain = authn.DefaultKeychain
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = version.UserAgent()
	}
	if cfg.Retry.Attempts == 0 {
		cfg.Retry = DefaultRetry
	}
	return &OCI{cfg: cfg, logger: log.OrDiscard(logger), now: time.Now}
}

// Name implements Publisher.
func (o *OCI) Name() string { return "oci" }

func (o *OCI) nameOptions() []name.Option {
	if o.cfg.Insecure {
		return []name.Option{name.Insecure}
	}
	return nil
}

func (o *OCI) remoteOptions(ctx context.Context) []remote.Option {
	return []remote.Option{
		remote.WithContext(ctx),
		remote.WithAuthFromKeychain(o.cfg.Keychain),
		remote.WithUserAgent(o.cfg.UserAgent),
	}
}

// Reference maps a package name and version to an image reference.
// OCI tags cannot carry "+", so build metadata is joined with "_".
func (o *OCI) Reference(pkgName, version string) (name.Tag, error) {
	repo := strings.TrimSuffix(o.cfg.Repository, "/")
	path := strings.ToLower(strings.TrimPrefix(pkgName, "@"))
	tag := strings.ReplaceAll(version, "+", "_")
	return name.NewTag(repo+"/"+path+":"+tag, o.nameOptions()...)
}

// Authenticate checks push permission on the repository once.
func (o *OCI) Authenticate(ctx context.Context) error {
	o.authOnce.Do(func() {
		repo, err := name.NewRepository(strings.TrimSuffix(o.cfg.Repository, "/"), o.nameOptions()...)
		if err != nil {
			o.authErr = classifyRegistryError(err, o.cfg.Repository, "authenticate")
			return
		}
		if err := remote.CheckPushPermission(repo.Tag("latest"), o.cfg.Keychain, remote.DefaultTransport); err != nil {
			o.authErr = classifyRegistryError(err, o.cfg.Repository, "authenticate")
		}
	})
	return o.authErr
}

// Exists reports whether the tag for name@version is present.
func (o *OCI) Exists(ctx context.Context, pkgName, version string) (bool, error) {
	ref, err := o.Reference(pkgName, version)
	if err != nil {
		return false, classifyRegistryError(err, pkgName, "resolve")
	}
	if _, err := remote.Head(ref, o.remoteOptions(ctx)...); err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, classifyRegistryError(err, ref.String(), "head")
	}
	return true, nil
}

// Publish pushes pkg.Path as one layer.
func (o *OCI) Publish(ctx context.Context, pkg Package, opts Options) Result {
	ref, err := o.Reference(pkg.Name, pkg.Version)
	if err != nil {
		return failure(pkg, classifyRegistryError(err, pkg.Name, "resolve"))
	}

	if !opts.DryRun {
		if err := o.Authenticate(ctx); err != nil {
			return failure(pkg, errors.Wrap(errors.CodeAuthFailed, "Not authenticated", err))
		}
	}

	exists, err := o.Exists(ctx, pkg.Name, pkg.Version)
	if err != nil {
		return failure(pkg, errors.Wrap(errors.CodeRegistryError, "existence check failed", err))
	}
	if exists {
		return failure(pkg, versionExists(ref.RegistryStr(), pkg.Name, pkg.Version))
	}

	img, err := o.image(pkg)
	if err != nil {
		return failure(pkg, errors.Wrap(errors.CodePackageInvalid, fmt.Sprintf("cannot package %s", pkg.Path), err))
	}
	digest, err := img.Digest()
	if err != nil {
		return failure(pkg, errors.Wrap(errors.CodePackageInvalid, "cannot compute image digest", err))
	}
	url := ref.Context().Digest(digest.String()).String()

	if opts.DryRun {
		return Result{Success: true, Name: pkg.Name, Version: pkg.Version, URL: url, DryRun: true}
	}

	_, err = backoff.Retry(ctx, func() (struct{}, error) {
		if err := remote.Write(ref, img, o.remoteOptions(ctx)...); err != nil {
			if isPermanentRegistryError(err) {
				return struct{}{}, backoff.Permanent(err)
			}
			return struct{}{}, err
		}
		return struct{}{}, nil
	}, o.cfg.Retry.options()...)
	if err != nil {
		return failure(pkg, errors.Wrap(errors.CodePublishFailed,
			fmt.Sprintf("push %s failed", ref), classifyRegistryError(err, ref.String(), "push")))
	}

	o.logger.Info("package pushed", "reference", ref.String(), "digest", digest.String())
	return Result{Success: true, Name: pkg.Name, Version: pkg.Version, URL: url}
}

// image builds a single-layer image from the files under pkg.Path.
func (o *OCI) image(pkg Package) (v1.Image, error) {
	files := make(map[string][]byte)
	err := filepath.WalkDir(pkg.Path, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			switch d.Name() {
			case ".git", "node_modules":
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(pkg.Path, path)
		if err != nil {
			return err
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		files[filepath.ToSlash(rel)] = data
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("package directory %s is empty", pkg.Path)
	}

	layer, err := crane.Layer(files)
	if err != nil {
		return nil, fmt.Errorf("failed to create layer: %w", err)
	}
	img, err := mutate.AppendLayers(empty.Image, layer)
	if err != nil {
		return nil, fmt.Errorf("failed to append layer: %w", err)
	}
	cfg, err := img.ConfigFile()
	if err != nil {
		return nil, fmt.Errorf("failed to get config: %w", err)
	}
	cfg = cfg.DeepCopy()
	cfg.Config.Labels = map[string]string{
		LabelTitle:   pkg.Name,
		LabelVersion: pkg.Version,
		LabelCreated: o.now().UTC().Format(time.RFC3339),
	}
	return mutate.ConfigFile(img, cfg)
}

// Unpublish deletes the manifest behind name@version. It is never called
// automatically.
func (o *OCI) Unpublish(ctx context.Context, pkgName, version string) Result {
	pkg := Package{Name: pkgName, Version: version}
	ref, err := o.Reference(pkgName, version)
	if err != nil {
		return failure(pkg, classifyRegistryError(err, pkgName, "resolve"))
	}
	if err := o.Authenticate(ctx); err != nil {
		return failure(pkg, errors.Wrap(errors.CodeAuthFailed, "Not authenticated", err))
	}

	desc, err := remote.Head(ref, o.remoteOptions(ctx)...)
	if err != nil {
		if isNotFound(err) {
			return failure(pkg, errors.Newf(errors.CodePackageMissing, "%s not found in registry", ref))
		}
		return failure(pkg, classifyRegistryError(err, ref.String(), "head"))
	}

	digestRef := ref.Context().Digest(desc.Digest.String())
	if err := remote.Delete(digestRef, o.remoteOptions(ctx)...); err != nil {
		return failure(pkg, errors.Wrap(errors.CodePublishFailed, fmt.Sprintf("delete %s failed", digestRef),
			classifyRegistryError(err, digestRef.String(), "delete")))
	}
	// Registries differ on whether deleting a digest drops its tags; many
	// also reject tag deletion outright, so this one is best effort.
	if err := remote.Delete(ref, o.remoteOptions(ctx)...); err != nil && !isNotFound(err) {
		o.logger.Debug("tag delete not supported", "reference", ref.String(), "error", err)
	}
	o.logger.Info("package deleted", "reference", digestRef.String())
	return Result{Success: true, Name: pkgName, Version: version, URL: digestRef.String()}
}
