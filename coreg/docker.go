package coreg

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/airbusgeo/reserve-monitor/service"
	"github.com/airbusgeo/reserve-monitor/service/log"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/api/types/registry"
	"github.com/docker/docker/client"
	"go.uber.org/zap/zapcore"
)

// DockerConfig configures the docker engine
type DockerConfig struct {
	Image            string
	Envs             []string
	RegistryServer   string // "https://europe-west1-docker.pkg.dev" for gcs for example
	RegistryUserName string // _json_key for gcs
	RegistryPassword string // service account for gcs
	VolumesToMount   string // List of volumes to mount (comma separated)
}

// SetFlags configures the flags of a docker config
// Returns docker envs as string, comma sep.
func (cfg *DockerConfig) SetFlags() *string {
	flag.StringVar(&cfg.Image, "docker-image", "", "docker image providing the arosics command")
	flag.StringVar(&cfg.RegistryUserName, "docker-registry-username", "_json_key", "username to authentication on private registry")
	flag.StringVar(&cfg.RegistryPassword, "docker-registry-password", "", "password to authentication on private registry")
	flag.StringVar(&cfg.RegistryServer, "docker-registry-server", "", "address of server to authenticate on private registry (e.g. https://europe-west1-docker.pkg.dev)")
	flag.StringVar(&cfg.VolumesToMount, "docker-mount-volumes", "", "list of volumes to mount on the docker (comma separated)")
	return flag.String("docker-envs", "", "environment variables passed to the container (comma sep)")
}

// DockerEngine runs arosics in a container
type DockerEngine struct {
	Client         *client.Client
	Image          string
	Mode           Mode
	Envs           []string
	VolumesToMount []string
	AuthConfig     string // encoded
}

// NewDockerEngine connects to the docker daemon (configured from the environment)
func NewDockerEngine(ctx context.Context, config DockerConfig, mode Mode) (*DockerEngine, error) {
	if config.Image == "" {
		return nil, fmt.Errorf("NewDockerEngine: missing image")
	}
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("NewDockerEngine.NewClient: %w", err)
	}

	d := DockerEngine{
		Client: cli,
		Image:  config.Image,
		Mode:   mode,
		Envs:   config.Envs,
	}
	if config.RegistryUserName != "" && config.RegistryPassword != "" && config.RegistryServer != "" {
		log.Logger(ctx).Info("register to container registry...")
		if d.AuthConfig, err = registry.EncodeAuthConfig(registry.AuthConfig{
			Username:      config.RegistryUserName,
			Password:      config.RegistryPassword,
			ServerAddress: config.RegistryServer,
		}); err != nil {
			return nil, fmt.Errorf("NewDockerEngine.EncodeAuthConfig: %w", err)
		}
	}
	if config.VolumesToMount != "" {
		d.VolumesToMount = strings.Split(config.VolumesToMount, ",")
	}

	if err := d.Ping(ctx, 5*time.Minute); err != nil {
		return nil, fmt.Errorf("NewDockerEngine.%w", err)
	}
	return &d, nil
}

// Ping waits for the docker daemon
func (d *DockerEngine) Ping(ctx context.Context, timeout time.Duration) error {
	var err error
	ctx, cnl := context.WithTimeout(ctx, timeout)
	defer cnl()
	for {
		if _, err = d.Client.Ping(ctx); err == nil {
			return nil
		}
		log.Logger(ctx).Info("Waiting for docker daemon...")
		select {
		case <-ctx.Done():
			return fmt.Errorf("Ping: docker daemon not found: %w", err)
		case <-time.After(5 * time.Second):
		}
	}
}

// Coregister implements Coregistrator
func (d *DockerEngine) Coregister(ctx context.Context, ref, target, out string) error {
	for _, p := range []*string{&ref, &target, &out} {
		abs, err := filepath.Abs(*p)
		if err != nil {
			return fmt.Errorf("Coregister.Abs: %w", err)
		}
		*p = abs
	}
	if err := os.MkdirAll(filepath.Dir(out), 0755); err != nil {
		return fmt.Errorf("Coregister.MkdirAll: %w", err)
	}
	tmp := service.AtomicPath(out)
	filter := &arosicsLogFilter{}
	if err := d.run(ctx, Args(d.Mode, ref, target, tmp), filter, filepath.Dir(ref), filepath.Dir(target), filepath.Dir(out)); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("Coregister[%s]: %w", filepath.Base(target), filter.WrapError(err))
	}
	if !service.FileExists(tmp) {
		return fmt.Errorf("Coregister[%s]: no output", filepath.Base(target))
	}
	if err := os.Rename(tmp, out); err != nil {
		return fmt.Errorf("Coregister.Rename: %w", err)
	}
	return nil
}

// mounts returns the bind mounts of the working directories (read-write) and of the configured volumes (read-only)
func (d *DockerEngine) mounts(workdirs ...string) []mount.Mount {
	set := service.NewStringSet(workdirs...)
	dirs := set.Slice()
	sort.Strings(dirs)
	var mounts []mount.Mount
	for _, dir := range dirs {
		mounts = append(mounts, mount.Mount{Type: mount.TypeBind, Source: dir, Target: dir})
	}
	for _, volume := range d.VolumesToMount {
		if set.Exists(volume) {
			continue
		}
		mounts = append(mounts, mount.Mount{Type: mount.TypeBind, Source: volume, Target: volume, ReadOnly: true})
	}
	return mounts
}

func (d *DockerEngine) run(ctx context.Context, args []string, filter *arosicsLogFilter, workdirs ...string) error {
	imageInfo, err := d.localImageInfo(ctx, d.Image)
	if err != nil {
		log.Logger(ctx).Info("pulling image " + d.Image)
		if imageInfo, err = d.pullImage(ctx, d.Image); err != nil {
			return fmt.Errorf("run.%w", err)
		}
	}

	created, err := d.Client.ContainerCreate(ctx,
		&container.Config{
			Image:        imageInfo.ID,
			Entrypoint:   []string{DefaultCommand},
			Cmd:          args,
			AttachStdout: true,
			AttachStderr: true,
			WorkingDir:   workdirs[0],
			Env:          d.Envs,
		},
		&container.HostConfig{Mounts: d.mounts(workdirs...)},
		nil, nil, "")
	if err != nil {
		return fmt.Errorf("run.ContainerCreate: %w", err)
	}
	defer func() {
		// ctx may be cancelled
		cctx, cncl := context.WithTimeout(context.Background(), time.Minute)
		defer cncl()
		if err := d.Client.ContainerStop(cctx, created.ID, container.StopOptions{}); err != nil {
			log.Logger(ctx).Sugar().Warnf("failed to stop container: %s", created.ID)
		}
		if err := d.Client.ContainerRemove(cctx, created.ID, container.RemoveOptions{}); err != nil {
			log.Logger(ctx).Sugar().Warnf("failed to remove container: %s", created.ID)
		}
	}()
	return d.runContainer(ctx, created.ID, filter)
}

func (d *DockerEngine) pullImage(ctx context.Context, ref string) (image.Summary, error) {
	rc, err := d.Client.ImagePull(ctx, ref, image.PullOptions{RegistryAuth: d.AuthConfig})
	if err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "timeout") {
			err = service.MakeTemporary(err)
		}
		return image.Summary{}, fmt.Errorf("pullImage[%s]: %w", ref, err)
	}
	defer rc.Close()
	if b, err := io.ReadAll(rc); err != nil {
		log.Logger(ctx).Sugar().Errorf("failed to read image pull information: %v", err)
	} else {
		log.Logger(ctx).Sugar().Debug(string(b))
	}
	return d.localImageInfo(ctx, ref)
}

func (d *DockerEngine) localImageInfo(ctx context.Context, ref string) (image.Summary, error) {
	images, err := d.Client.ImageList(ctx, image.ListOptions{Filters: filters.NewArgs(filters.Arg("reference", ref))})
	if err != nil {
		return image.Summary{}, service.MakeTemporary(fmt.Errorf("localImageInfo[%s]: %w", ref, err))
	}
	if len(images) < 1 {
		return image.Summary{}, service.MakeTemporary(fmt.Errorf("localImageInfo: not found: %s", ref))
	}
	return images[0], nil
}

func (d *DockerEngine) runContainer(ctx context.Context, containerID string, filter *arosicsLogFilter) error {
	if err := d.Client.ContainerStart(ctx, containerID, container.StartOptions{}); err != nil {
		return fmt.Errorf("runContainer.ContainerStart: %w", err)
	}

	logs, err := d.Client.ContainerLogs(ctx, containerID, container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
		Follow:     true,
	})
	if err != nil {
		return fmt.Errorf("runContainer.ContainerLogs: %w", err)
	}
	// stream is multiplexed: each line starts with an 8-byte header
	log.ScanLines(logs, 8, func(msg string) {
		log.Print(ctx, filter, zapcore.DebugLevel, msg)
	})
	logs.Close()

	statusCh, errCh := d.Client.ContainerWait(ctx, containerID, container.WaitConditionNotRunning)
	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("runContainer.ContainerWait: %w", err)
		}
	case exit := <-statusCh:
		if exit.StatusCode != 0 {
			return fmt.Errorf("runContainer: exit status %d", exit.StatusCode)
		}
	}
	return nil
}
