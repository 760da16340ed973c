package main

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/GoCodeAlone/artifactkit/artifact"
)

func runList(ctx context.Context, args []string) error {
	fs := newFlagSet("list", `Usage: artifactctl list [options]

List the artifacts of the current run, or of the run given by --repo and
--run-id.`)
	g := addGlobalFlags(fs)
	find := addFindFlags(fs)
	latest := fs.Bool("latest", false, "keep only the newest artifact of each name")
	asJSON := fs.Bool("json", false, "print the result as JSON")
	if ok, err := parseFlags(fs, args); !ok {
		return err
	}
	findOpts, err := find.options()
	if err != nil {
		return err
	}

	return g.run(ctx, func(s *session) error {
		resp, err := s.client.List(ctx, artifact.ListOptions{FindOptions: findOpts, Latest: *latest})
		if err != nil {
			return err
		}
		if *asJSON {
			return printJSON(resp)
		}
		printArtifacts(resp.Artifacts)
		return nil
	})
}

func runGet(ctx context.Context, args []string) error {
	fs := newFlagSet("get", `Usage: artifactctl get --name NAME [options]

Show the metadata of one artifact.`)
	g := addGlobalFlags(fs)
	find := addFindFlags(fs)
	name := fs.String("name", "", "artifact name (required)")
	asJSON := fs.Bool("json", false, "print the result as JSON")
	if ok, err := parseFlags(fs, args); !ok {
		return err
	}
	if *name == "" {
		fs.Usage()
		return fmt.Errorf("--name is required")
	}
	findOpts, err := find.options()
	if err != nil {
		return err
	}

	return g.run(ctx, func(s *session) error {
		resp, err := s.client.Get(ctx, *name, findOpts)
		if err != nil {
			return err
		}
		if *asJSON {
			return printJSON(resp)
		}
		printArtifacts([]artifact.Artifact{resp.Artifact})
		return nil
	})
}

func runDelete(ctx context.Context, args []string) error {
	fs := newFlagSet("delete", `Usage: artifactctl delete --name NAME [options]

Delete an artifact of the current run.`)
	g := addGlobalFlags(fs)
	find := addFindFlags(fs)
	name := fs.String("name", "", "artifact name (required)")
	if ok, err := parseFlags(fs, args); !ok {
		return err
	}
	if *name == "" {
		fs.Usage()
		return fmt.Errorf("--name is required")
	}
	findOpts, err := find.options()
	if err != nil {
		return err
	}

	return g.run(ctx, func(s *session) error {
		resp, err := s.client.Delete(ctx, *name, findOpts)
		if err != nil {
			return err
		}
		fmt.Fprintf(stdout, "Deleted %s\n", resp.Key)
		return nil
	})
}

func printArtifacts(artifacts []artifact.Artifact) {
	if len(artifacts) == 0 {
		fmt.Fprintln(stdout, "No artifacts found.")
		return
	}
	w := tabwriter.NewWriter(stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tSIZE\tCREATED\tDIGEST")
	for _, a := range artifacts {
		created := "-"
		if a.CreatedAt != nil {
			created = a.CreatedAt.Format(time.RFC3339)
		}
		digest := a.Digest
		if digest == "" {
			digest = "-"
		}
		fmt.Fprintf(w, "%s\t%d\t%s\t%s\n", a.Name, a.Size, created, digest)
	}
	w.Flush()
}
