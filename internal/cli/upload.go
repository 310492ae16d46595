package cli

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/spf13/cobra"

	"github.com/45Drives/studio-share-sub000/internal/config"
	"github.com/45Drives/studio-share-sub000/internal/events"
	"github.com/45Drives/studio-share-sub000/internal/history"
	"github.com/45Drives/studio-share-sub000/internal/models"
	"github.com/45Drives/studio-share-sub000/internal/pathutil"
	"github.com/45Drives/studio-share-sub000/internal/progress"
	"github.com/45Drives/studio-share-sub000/internal/resolve"
	"github.com/45Drives/studio-share-sub000/internal/transfer"
)

// uploadFlags holds the upload command's flag values.
type uploadFlags struct {
	host       string
	user       string
	dest       string
	port       int
	identity   string
	knownHosts string
	bwlimit    int
	transport  string
	extra      []string
	extraKind  string
	noHistory  bool
}

func newUploadCmd() *cobra.Command {
	var f uploadFlags

	cmd := &cobra.Command{
		Use:   "upload <source>...",
		Short: "Upload files or folders to the server",
		Long: `Upload one or more local files or folders into a remote directory.

Each source runs as its own transfer; up to max_concurrent run at once.
With rsync and SFTP a folder's contents are placed inside the destination
directory; scp creates the folder itself inside it.

Examples:
  studio-share upload --host nas.local --user editor --dest /tank/projects ./Reel1
  studio-share upload --bwlimit 5000 --transport scp clip1.mov clip2.mov`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			applyUploadDefaults(cmd, &f, GetConfig())
			reqs, err := buildRequests(args, f)
			if err != nil {
				return err
			}
			return runUploads(GetContext(), cmd, reqs, f)
		},
	}

	cmd.Flags().StringVar(&f.host, "host", "", "Destination host (env "+EnvHost+")")
	cmd.Flags().StringVarP(&f.user, "user", "u", "", "Remote user (env "+EnvUser+")")
	cmd.Flags().StringVarP(&f.dest, "dest", "d", "", "Remote destination directory (env "+EnvDest+")")
	cmd.Flags().IntVarP(&f.port, "port", "p", 0, "SSH port (env "+EnvPort+", default from config)")
	cmd.Flags().StringVarP(&f.identity, "identity", "i", "", "SSH private key file (env "+EnvIdentity+")")
	cmd.Flags().StringVar(&f.knownHosts, "known-hosts", "", "known_hosts file (env "+EnvKnownHosts+")")
	cmd.Flags().IntVar(&f.bwlimit, "bwlimit", 0, "Bandwidth limit in KB/s, 0 for unlimited (env "+EnvBwLimit+")")
	cmd.Flags().StringVarP(&f.transport, "transport", "t", "", "Force a transport: rsync, scp, ssh-stream or sftp")
	cmd.Flags().StringArrayVar(&f.extra, "extra", nil, "Extra flag passed to the transport (repeatable)")
	cmd.Flags().StringVar(&f.extraKind, "extra-kind", "rsync", "Transport the --extra flags are meant for")
	cmd.Flags().BoolVar(&f.noHistory, "no-history", false, "Do not record the transfers in history")

	return cmd
}

// applyUploadDefaults fills flags the user did not set, first from the
// environment and then from the config file.
func applyUploadDefaults(cmd *cobra.Command, f *uploadFlags, c *config.Config) {
	changed := cmd.Flags().Changed
	if !changed("host") {
		f.host = envString(EnvHost, f.host)
	}
	if !changed("user") {
		f.user = envString(EnvUser, f.user)
	}
	if !changed("dest") {
		f.dest = envString(EnvDest, f.dest)
	}
	if !changed("port") {
		f.port = envInt(EnvPort, c.Transfer.Port)
	}
	if !changed("identity") {
		f.identity = envString(EnvIdentity, f.identity)
	}
	if !changed("known-hosts") {
		f.knownHosts = envString(EnvKnownHosts, c.SSH.KnownHosts)
	}
	if !changed("bwlimit") {
		f.bwlimit = envInt(EnvBwLimit, c.Transfer.BwLimitKbps)
	}
	if !changed("transport") {
		f.transport = c.Transfer.Transport
	}
}

// buildRequests turns the sources into transfer requests. Sources are made
// absolute here; everything else is checked by the manager.
func buildRequests(sources []string, f uploadFlags) ([]models.TransferRequest, error) {
	kind, ok := models.ParseTransportKind(f.extraKind)
	if !ok {
		return nil, fmt.Errorf("unknown --extra-kind %q", f.extraKind)
	}
	identity := f.identity
	if identity != "" {
		abs, err := pathutil.ResolveAbsolutePath(identity)
		if err != nil {
			return nil, fmt.Errorf("identity file: %w", err)
		}
		identity = abs
	}

	reqs := make([]models.TransferRequest, 0, len(sources))
	for _, src := range sources {
		abs, err := pathutil.ResolveAbsolutePath(src)
		if err != nil {
			return nil, fmt.Errorf("source %s: %w", src, err)
		}
		reqs = append(reqs, models.TransferRequest{
			Source:             abs,
			DestinationHost:    f.host,
			DestinationUser:    f.user,
			DestinationDir:     f.dest,
			Port:               f.port,
			IdentityPath:       identity,
			KnownHostsPath:     f.knownHosts,
			BandwidthLimitKbps: f.bwlimit,
			ExtraFlags:         f.extra,
			ExtraFlagsKind:     kind,
		})
	}
	return reqs, nil
}

// newResolver builds the resolver, honouring a forced transport.
func newResolver(transport string) (*resolve.Resolver, error) {
	opts := []resolve.Option{resolve.WithLogger(GetLogger())}
	if transport != "" && transport != config.TransportAuto {
		kind, ok := models.ParseTransportKind(transport)
		if !ok {
			return nil, fmt.Errorf("unknown transport %q", transport)
		}
		opts = append(opts, resolve.WithPreference(kind))
	}
	return resolve.NewResolver(opts...), nil
}

func newManager(resolver transfer.Resolver, c *config.Config, log transfer.Option, bus *events.EventBus) *transfer.Manager {
	tc := transfer.DefaultConfig(resolve.Current())
	tc.KnownHosts = c.SSH.KnownHosts
	tc.SSH = c.SSHOptions()
	tc.MaxConcurrent = c.Transfer.MaxConcurrent
	return transfer.NewManager(resolver, tc, log, transfer.WithEventBus(bus))
}

func runUploads(ctx context.Context, cmd *cobra.Command, reqs []models.TransferRequest, f uploadFlags) error {
	resolver, err := newResolver(f.transport)
	if err != nil {
		return err
	}

	log := GetLogger()
	bus := events.NewEventBus(events.DefaultBufferSize)
	defer bus.Close()
	mgr := newManager(resolver, GetConfig(), transfer.WithLogger(log), bus)

	var (
		out     = cmd.OutOrStdout()
		render  func(models.TransferRequest) progress.Display
		board   *progress.Board
		jsonWG  sync.WaitGroup
		jsonSub <-chan events.Event
	)
	switch {
	case jsonOutput:
		jsonSub = bus.SubscribeAll()
		jsonWG.Add(1)
		go func() {
			defer jsonWG.Done()
			writeEvents(out, jsonSub)
		}()
		render = func(models.TransferRequest) progress.Display { return nil }
	case len(reqs) == 1:
		render = func(r models.TransferRequest) progress.Display { return progress.NewBar(r.Source) }
	default:
		board = progress.NewBoard(len(reqs))
		log.SetOutput(board.Writer())
		render = func(r models.TransferRequest) progress.Display { return board.Add(r.Source, r.RemoteSpec()) }
	}

	var started []*transfer.Session
	var startErr error
	for _, req := range reqs {
		display := render(req)
		s, err := mgr.StartTransfer(ctx, req, observe(display))
		if err != nil {
			if display != nil {
				display.Complete(err)
			}
			startErr = errors.Join(startErr, err)
			continue
		}
		started = append(started, s)
	}

	mgr.Wait()
	if board != nil {
		board.Wait()
	}
	// Closing the bus ends the writer once buffered events are out.
	bus.Close()
	jsonWG.Wait()

	if !f.noHistory {
		recordHistory(mgr.Sessions())
	}
	return summarize(started, startErr)
}

// observe adapts a display to session callbacks. A nil display observes
// nothing.
func observe(d progress.Display) transfer.Observer {
	if d == nil {
		return transfer.Observer{}
	}
	return transfer.Observer{
		OnProgress: d.Update,
		OnComplete: func(res transfer.Result) {
			if res.OK {
				d.Complete(nil)
				return
			}
			d.Complete(resultError(res))
		},
	}
}

func resultError(res transfer.Result) error {
	var spawn *transfer.SpawnError
	if errors.As(res.Err, &spawn) {
		return fmt.Errorf("%s (%s)", res.Error, spawn.Hint())
	}
	return errors.New(res.Error)
}

func summarize(sessions []*transfer.Session, startErr error) error {
	failed := 0
	canceled := 0
	for _, s := range sessions {
		switch s.State() {
		case transfer.StateFailed:
			failed++
		case transfer.StateCanceled:
			canceled++
		}
	}
	switch {
	case startErr != nil:
		return startErr
	case failed > 0:
		return fmt.Errorf("%d of %d transfers failed", failed, len(sessions))
	case canceled > 0:
		return fmt.Errorf("%d of %d transfers canceled", canceled, len(sessions))
	}
	return nil
}

func recordHistory(infos []transfer.Info) {
	path, err := config.HistoryPath()
	if err != nil {
		GetLogger().Debug().Err(err).Msg("no history path")
		return
	}
	store, err := history.Open(path)
	if err != nil {
		GetLogger().Warn().Err(err).Msg("could not open history")
		return
	}
	defer store.Close()
	for _, info := range infos {
		if !info.State.IsTerminal() {
			continue
		}
		if err := store.Save(info); err != nil {
			GetLogger().Warn().Err(err).Str("id", info.ID).Msg("could not record transfer")
		}
	}
}
