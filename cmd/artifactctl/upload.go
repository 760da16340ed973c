package main

import (
	"context"
	"fmt"

	"github.com/GoCodeAlone/artifactkit/archive"
	"github.com/GoCodeAlone/artifactkit/artifact"
)

func runUpload(ctx context.Context, args []string) error {
	fs := newFlagSet("upload", `Usage: artifactctl upload --name NAME [options] FILE...

Archive the given files, which must all live under --root, and store the
archive as an artifact of the current run.`)
	g := addGlobalFlags(fs)
	name := fs.String("name", "", "artifact name (required)")
	root := fs.String("root", ".", "directory the archive paths are relative to")
	level := fs.Int("compression-level", archive.DefaultCompressionLevel, "deflate level 0-9, -1 for the default")
	failIfExists := fs.Bool("fail-if-exists", false, "fail instead of replacing an artifact with the same name")
	asJSON := fs.Bool("json", false, "print the result as JSON")
	if ok, err := parseFlags(fs, args); !ok {
		return err
	}
	if *name == "" {
		fs.Usage()
		return fmt.Errorf("--name is required")
	}

	return g.run(ctx, func(s *session) error {
		resp, err := s.client.Upload(ctx, *name, fs.Args(), *root, artifact.UploadOptions{
			CompressionLevel: level,
			FailIfExists:     *failIfExists,
		})
		if err != nil {
			return err
		}
		if *asJSON {
			return printJSON(resp)
		}
		fmt.Fprintf(stdout, "Uploaded %s (%d bytes, digest %s) to %s\n", *name, resp.Size, resp.Digest, resp.Key)
		return nil
	})
}
