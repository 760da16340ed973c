package main

import (
	"context"
	"fmt"

	"github.com/GoCodeAlone/artifactkit/artifact"
)

func runDownload(ctx context.Context, args []string) error {
	fs := newFlagSet("download", `Usage: artifactctl download [--name NAME] [options]

Extract an artifact into --path (default: the workspace). Without --name
the newest artifact of the run is taken.`)
	g := addGlobalFlags(fs)
	find := addFindFlags(fs)
	name := fs.String("name", "", "artifact name")
	path := fs.String("path", "", "destination directory")
	if ok, err := parseFlags(fs, args); !ok {
		return err
	}
	findOpts, err := find.options()
	if err != nil {
		return err
	}

	return g.run(ctx, func(s *session) error {
		resp, err := s.client.Download(ctx, *name, artifact.DownloadOptions{FindOptions: findOpts, Path: *path})
		if err != nil {
			return err
		}
		fmt.Fprintf(stdout, "Downloaded %s (%d files) to %s\n", resp.Artifact.Name, resp.Files, resp.DownloadPath)
		return nil
	})
}
