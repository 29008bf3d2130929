// Command pdfmerge-cli merges or inspects local PDF files.
package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sort"

	flags "github.com/jessevdk/go-flags"

	"pdfmerge/internal/merge"
	"pdfmerge/internal/pdfcodec"
)

type options struct {
	Output   string `short:"o" long:"output" default:"merged_document.pdf" description:"file to write the merged PDF to"`
	Inspect  bool   `long:"inspect" description:"print page count, encryption and metadata instead of merging"`
	Strict   bool   `long:"strict" description:"validate inputs strictly"`
	Divider  bool   `long:"divider" description:"insert a blank page between documents"`
	Password string `long:"password" description:"password for encrypted inputs"`

	Args struct {
		Files []string `positional-arg-name:"FILE" required:"1"`
	} `positional-args:"yes"`
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	var opts options
	parser := flags.NewParser(&opts, flags.HelpFlag|flags.PassDoubleDash)
	parser.Usage = "[OPTIONS] FILE..."
	if _, err := parser.ParseArgs(args); err != nil {
		var ferr *flags.Error
		if errors.As(err, &ferr) && ferr.Type == flags.ErrHelp {
			fmt.Fprintln(stdout, err)
			return 0
		}
		fmt.Fprintln(stderr, err)
		return 2
	}

	mode := pdfcodec.ModeRelaxed
	if opts.Strict {
		mode = pdfcodec.ModeStrict
	}
	codec := pdfcodec.New(pdfcodec.Options{
		ValidationMode: mode,
		DividerPage:    opts.Divider,
		Password:       opts.Password,
	})

	var err error
	if opts.Inspect {
		err = inspect(codec, opts.Args.Files, stdout)
	} else {
		err = mergeFiles(codec, opts.Args.Files, merge.EnsurePDFSuffix(opts.Output), stdout)
	}
	if err != nil {
		fmt.Fprintln(stderr, "error:", err)
		return 1
	}
	return 0
}

func mergeFiles(codec merge.Codec, files []string, output string, stdout io.Writer) error {
	if len(files) < 2 {
		return errors.New("please select at least 2 PDF files to merge")
	}

	s := merge.NewSession(codec)
	defer s.Close()
	for _, name := range files {
		f, err := os.Open(name)
		if err != nil {
			return err
		}
		err = s.AddFrom(f, name)
		f.Close()
		if err != nil {
			return err
		}
	}

	out, err := s.Merge()
	if err != nil {
		return err
	}
	if err := os.WriteFile(output, out.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", output, err)
	}
	fmt.Fprintf(stdout, "Merged %d files (%d pages, %s) into %s\n", out.Documents(), s.Pages(), merge.FormatSize(out.Len()), output)
	return nil
}

// inspect reports every file; it fails when at least one file is invalid.
func inspect(codec merge.Codec, files []string, stdout io.Writer) error {
	s := merge.NewSession(codec)
	failed := 0
	for _, name := range files {
		data, err := os.ReadFile(name)
		if err != nil {
			return err
		}
		info, err := s.Inspect(data)
		if err != nil {
			fmt.Fprintf(stdout, "%s: %v\n", name, err)
			failed++
			continue
		}
		fmt.Fprintf(stdout, "%s: %d pages, %s, encrypted=%t\n", name, info.PageCount, merge.FormatSize(len(data)), info.IsEncrypted)
		keys := make([]string, 0, len(info.Metadata))
		for k := range info.Metadata {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(stdout, "  %s: %s\n", k, info.Metadata[k])
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d files are not valid PDFs", failed, len(files))
	}
	return nil
}
