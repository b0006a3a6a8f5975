// Package cli implements the command-line client: upload, download and
// info subcommands over the server's HTTP API.
package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/hibana-share/hibana/internal/client/api"
)

const defaultServerURL = "http://localhost:3000"

type App struct {
	out io.Writer
}

func NewApp(out io.Writer) *App {
	return &App{out: out}
}

// Run dispatches args (without the program name) to a subcommand.
func (a *App) Run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		a.usage()
		return errors.New("missing command")
	}

	switch args[0] {
	case "upload":
		return a.runUpload(ctx, args[1:])
	case "download":
		return a.runDownload(ctx, args[1:])
	case "info":
		return a.runInfo(ctx, args[1:])
	default:
		a.usage()
		return fmt.Errorf("unknown command %q", args[0])
	}
}

func (a *App) usage() {
	fmt.Fprintln(a.out, "usage:")
	fmt.Fprintln(a.out, "  upload   -file PATH [-expires 24h] [-max-downloads N] [-server URL]")
	fmt.Fprintln(a.out, "  download -url SHARE_URL [-out PATH]")
	fmt.Fprintln(a.out, "  info     -url SHARE_URL")
}

func serverFlag(fs *flag.FlagSet) *string {
	def := defaultServerURL
	if v := os.Getenv("SERVER_URL"); v != "" {
		def = v
	}
	return fs.String("server", def, "server base URL")
}

func (a *App) runUpload(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("upload", flag.ContinueOnError)
	fs.SetOutput(a.out)
	file := fs.String("file", "", "path of the file to upload")
	expires := fs.Duration("expires", 0, "validity window, e.g. 24h (0 = never expires)")
	maxDownloads := fs.Int("max-downloads", 0, "download limit (0 = unlimited)")
	server := serverFlag(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *file == "" {
		return errors.New("upload: -file is required")
	}

	client := api.NewClient(*server)
	result, err := client.Upload(ctx, *file, *expires, int32(*maxDownloads))
	if err != nil {
		return err
	}

	fmt.Fprintf(a.out, "file_id:   %s\n", result.FileID)
	fmt.Fprintf(a.out, "share url: %s\n", result.DownloadURL)
	if result.ExpiresAt != nil {
		fmt.Fprintf(a.out, "expires:   %s\n", result.ExpiresAt.Format(time.RFC3339))
	}
	if result.MaxDownloads != nil {
		fmt.Fprintf(a.out, "downloads: %d\n", *result.MaxDownloads)
	}
	return nil
}

func (a *App) runDownload(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("download", flag.ContinueOnError)
	fs.SetOutput(a.out)
	shareURL := fs.String("url", "", "share URL including the #fragment")
	out := fs.String("out", "", "output path (default: server-reported filename)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *shareURL == "" {
		return errors.New("download: -url is required")
	}

	client := api.NewClient("")
	filename, plaintext, err := client.Download(ctx, *shareURL)
	if err != nil {
		return err
	}

	target := *out
	if target == "" {
		// the server-reported filename is untrusted; strip any path it
		// carries so it can only name a file in the current directory
		target = filepath.Base(filename)
	}
	if target == "" || target == "." || target == ".." || target == string(filepath.Separator) {
		target = "download.bin"
	}

	if err := os.WriteFile(target, plaintext, 0o600); err != nil {
		return fmt.Errorf("write %s: %w", target, err)
	}

	fmt.Fprintf(a.out, "wrote %d bytes to %s\n", len(plaintext), target)
	return nil
}

func (a *App) runInfo(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("info", flag.ContinueOnError)
	fs.SetOutput(a.out)
	shareURL := fs.String("url", "", "share URL")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *shareURL == "" {
		return errors.New("info: -url is required")
	}

	client := api.NewClient("")
	info, err := client.Info(ctx, *shareURL)
	if err != nil {
		return err
	}

	fmt.Fprintf(a.out, "file_id:   %s\n", info.FileID)
	fmt.Fprintf(a.out, "filename:  %s\n", info.OriginalFilename)
	fmt.Fprintf(a.out, "size:      %d bytes (%d encrypted)\n", info.SizeBytes, info.EncryptedSize)
	fmt.Fprintf(a.out, "status:    %s\n", info.Status)
	fmt.Fprintf(a.out, "created:   %s\n", info.CreatedAt.Format(time.RFC3339))
	if info.ExpiresAt != nil {
		fmt.Fprintf(a.out, "expires:   %s\n", info.ExpiresAt.Format(time.RFC3339))
	}
	if info.DownloadsRemaining != nil {
		fmt.Fprintf(a.out, "downloads: %d remaining", *info.DownloadsRemaining)
		if info.MaxDownloads != nil {
			fmt.Fprintf(a.out, " of %d", *info.MaxDownloads)
		}
		fmt.Fprintln(a.out)
	}
	return nil
}
