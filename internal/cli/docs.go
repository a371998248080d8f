package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/specforge/internal/compiler"
	"github.com/roach88/specforge/internal/ir"
	"github.com/roach88/specforge/internal/patch"
	"github.com/roach88/specforge/internal/specerr"
	"github.com/roach88/specforge/internal/store"
)

// ValidationResult is the validate command's JSON payload.
type ValidationResult struct {
	Valid       bool            `json:"valid"`
	Diagnostics []ir.Diagnostic `json:"diagnostics"`
	Normalized  ir.IRValue      `json:"normalized,omitempty"`
}

// HashResult is the hash command's JSON payload.
type HashResult struct {
	Hash      string `json:"hash"`
	Canonical string `json:"canonical"`
}

func readDocument(path string) (ir.IRValue, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, specerr.Wrap(specerr.IOError, err, "read "+path)
	}
	doc, err := ir.ParseValue(data)
	if err != nil {
		return nil, specerr.Wrap(specerr.InvalidInput, err, "parse "+path)
	}
	return doc, nil
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <spec.json>",
		Short: "Run the designspec/v1 compiler gate on a document",
		Long: `Run structural and semantic validation on a DesignSpec JSON file.

Exits 1 when the document has error diagnostics. Warnings are printed
but do not fail validation.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true, // Don't print usage on errors
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, path string, cmd *cobra.Command) error {
	f := opts.formatter(cmd)

	doc, err := readDocument(path)
	if err != nil {
		return f.Fail(err, nil)
	}
	f.VerboseLog("Validating %s", path)

	res, err := compiler.CompileValidateV1(doc)
	if err != nil {
		return f.Fail(err, nil)
	}
	diags := res.Diagnostics
	if diags == nil {
		diags = []ir.Diagnostic{}
	}

	if f.Format == "json" {
		if err := f.Success(ValidationResult{Valid: res.OK, Diagnostics: diags, Normalized: res.Normalized}); err != nil {
			return err
		}
	} else {
		for _, d := range diags {
			fmt.Fprintln(f.Writer, d.String())
		}
		errs, warns := ir.CountByLevel(diags)
		if res.OK {
			fmt.Fprintf(f.Writer, "✓ %s is valid (%d warnings)\n", path, warns)
		} else {
			fmt.Fprintf(f.Writer, "✗ %s: %d errors, %d warnings\n", path, errs, warns)
		}
	}

	if !res.OK {
		return NewExitError(ExitFailure, "validation failed")
	}
	return nil
}

// NewPatchCommand creates the patch command.
func NewPatchCommand(rootOpts *RootOptions) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "patch <doc.json> <patch.json>",
		Short: "Apply a JSON patch (add/remove/replace) to a document",
		Long: `Apply an RFC 6902 subset patch to a JSON document and print the result.

The input documents are never modified. With --output the result is
written atomically to a file instead of stdout.`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPatch(rootOpts, args[0], args[1], output, cmd)
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "write the patched document to a file")

	return cmd
}

func runPatch(opts *RootOptions, docPath, patchPath, output string, cmd *cobra.Command) error {
	f := opts.formatter(cmd)

	doc, err := readDocument(docPath)
	if err != nil {
		return f.Fail(err, nil)
	}
	patchDoc, err := readDocument(patchPath)
	if err != nil {
		return f.Fail(err, nil)
	}
	result, err := patch.ApplyJSON(doc, patchDoc)
	if err != nil {
		return f.Fail(err, nil)
	}

	if output == "" {
		return f.Success(result)
	}

	data, err := ir.MarshalIRValue(result)
	if err != nil {
		return f.Fail(specerr.Wrap(specerr.InvalidInput, err, "encode result"), nil)
	}
	if err := store.WriteFileAtomic(output, append(data, '\n'), 0o644); err != nil {
		return f.Fail(err, nil)
	}
	f.VerboseLog("Wrote %s", output)
	return f.Success(fmt.Sprintf("✓ wrote %s", output))
}

// NewHashCommand creates the hash command.
func NewHashCommand(rootOpts *RootOptions) *cobra.Command {
	var canonical bool

	cmd := &cobra.Command{
		Use:   "hash <doc.json>",
		Short: "Print the canonical SHA-256 hash of a JSON document",
		Long: `Print the SHA-256 hash of a document's canonical JSON form
(RFC 8785 key order, NFC strings). Equal documents hash equally
regardless of key order or whitespace.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHash(rootOpts, args[0], canonical, cmd)
		},
	}

	cmd.Flags().BoolVar(&canonical, "canonical", false, "also print the canonical form")

	return cmd
}

func runHash(opts *RootOptions, path string, canonical bool, cmd *cobra.Command) error {
	f := opts.formatter(cmd)

	doc, err := readDocument(path)
	if err != nil {
		return f.Fail(err, nil)
	}
	text, err := ir.StableStringify(doc)
	if err != nil {
		return f.Fail(specerr.Wrap(specerr.InvalidInput, err, "canonicalize"), nil)
	}
	sum, err := ir.Hash(doc)
	if err != nil {
		return f.Fail(specerr.Wrap(specerr.InvalidInput, err, "hash"), nil)
	}

	if f.Format == "json" {
		return f.Success(HashResult{Hash: sum, Canonical: text})
	}
	var b strings.Builder
	b.WriteString(sum)
	if canonical {
		b.WriteString("\n")
		b.WriteString(text)
	}
	return f.Success(b.String())
}
