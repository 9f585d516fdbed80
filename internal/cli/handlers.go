package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/BartekS5/fieldmap/internal/config"
	"github.com/BartekS5/fieldmap/internal/rules"
	"github.com/BartekS5/fieldmap/internal/schema"
	"github.com/BartekS5/fieldmap/internal/validation"
	"github.com/BartekS5/fieldmap/internal/wizard"
	"github.com/BartekS5/fieldmap/pkg/logger"
	"github.com/BartekS5/fieldmap/pkg/models"
	"github.com/BartekS5/fieldmap/pkg/utils"
)

var (
	errMappingInvalid    = errors.New("mapping is not valid")
	errConnectionInvalid = errors.New("connection is not valid")
	errProductInvalid    = errors.New("product form is not valid")
)

func (a *app) runTree(cmd *cobra.Command, opts *TreeOptions) error {
	sample, err := config.LoadSample(opts.SampleFile, opts.Root)
	if err != nil {
		return err
	}
	tree := sample.Tree()
	out := cmd.OutOrStdout()

	if opts.JSON {
		return writeJSON(out, tree)
	}

	schema.Walk(tree, func(n models.TreeNode, depth int) {
		line := fmt.Sprintf("%s%s  (%s)", strings.Repeat("  ", depth), n.Label, n.Key)
		if n.IsLeaf() {
			line += " = " + utils.FormatSample(n.Payload.RawValue)
		}
		fmt.Fprintln(out, line)
	})
	return nil
}

// loadMappedSession builds a session from a sample and mapping file and waits
// until every rule has been validated.
func (a *app) loadMappedSession(ctx context.Context, opts *MappingOptions) (*wizard.Session, error) {
	mf, err := config.LoadMapping(opts.MappingFile)
	if err != nil {
		return nil, err
	}
	root := opts.Root
	if root == "" {
		root = mf.Root
	}
	sample, err := config.LoadSample(opts.SampleFile, root)
	if err != nil {
		return nil, err
	}

	sess := a.newSession(root, nil)
	sess.SetSample(sample)
	if err := sess.ApplyFields(mf); err != nil {
		sess.Close()
		return nil, err
	}
	if err := settle(ctx, sess, opts.SettleTimeout); err != nil {
		sess.Close()
		return nil, err
	}
	return sess, nil
}

func settle(ctx context.Context, sess *wizard.Session, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := sess.Store().WaitSettled(ctx); err != nil {
		return fmt.Errorf("rule validation did not finish within %s: %w", timeout, err)
	}
	return nil
}

func (a *app) runValidate(cmd *cobra.Command, opts *MappingOptions) error {
	sess, err := a.loadMappedSession(cmd.Context(), opts)
	if err != nil {
		return err
	}
	defer sess.Close()

	out := cmd.OutOrStdout()
	printMappings(out, sess.Store().Mappings())

	steps := sess.Steps()
	fmt.Fprintf(out, "\nfield mapping: %s\ncleaning:      %s\n", verdict(steps.FieldMapping), verdict(steps.Cleaning))
	if !steps.FieldMapping || !steps.Cleaning {
		return errMappingInvalid
	}
	return nil
}

func (a *app) runPreview(cmd *cobra.Command, opts *MappingOptions) error {
	sess, err := a.loadMappedSession(cmd.Context(), opts)
	if err != nil {
		return err
	}
	defer sess.Close()

	res, err := sess.Preview(cmd.Context())
	if err != nil {
		return err
	}

	errs := make(map[string]string, len(res.Errors))
	for key, e := range res.Errors {
		errs[key] = e.Error()
	}
	if len(errs) > 0 {
		logger.Warnf("%d of %d rules produced no value", len(errs), len(res.Order))
	}
	return writeJSON(cmd.OutOrStdout(), struct {
		Row    map[string]any    `json:"row"`
		Errors map[string]string `json:"errors,omitempty"`
	}{res.Row, errs})
}

func (a *app) runTestConnection(cmd *cobra.Command, opts *TestConnectionOptions) error {
	ctx := cmd.Context()
	form, err := config.LoadConnection(opts.ConnectionFile)
	if err != nil {
		return err
	}

	sess := a.newSession(opts.Root, nil)
	defer sess.Close()
	sess.Connection().Update(form)

	out := cmd.OutOrStdout()
	if err := sess.TestConnection(ctx); err != nil {
		printFieldErrors(out, sess.Connection().Errors().Fields())
		return fmt.Errorf("%w: %w", errConnectionInvalid, err)
	}

	sample := sess.Sample()
	fmt.Fprintf(out, "connection ok, %d bytes, %d top level fields\n", len(sample.Raw), len(sess.Tree()))
	if opts.OutFile != "" {
		if err := os.WriteFile(opts.OutFile, sample.Raw, 0o644); err != nil {
			return fmt.Errorf("failed to write sample: %w", err)
		}
		logger.Infof("Sample written to %s", opts.OutFile)
	}
	return nil
}

func (a *app) runSave(cmd *cobra.Command, opts *SaveOptions) error {
	ctx := cmd.Context()

	form, err := config.LoadConnection(opts.ConnectionFile)
	if err != nil {
		return err
	}
	mf, err := config.LoadMapping(opts.MappingFile)
	if err != nil {
		return err
	}
	root := opts.Root
	if root == "" {
		root = mf.Root
	}

	out := cmd.OutOrStdout()
	s, err := a.openSink(ctx, out)
	if err != nil {
		return err
	}
	defer s.Close(ctx)

	if opts.Migrate {
		if err := s.Migrate(ctx); err != nil {
			return err
		}
	}
	names, err := s.ExistingNames(ctx)
	if err != nil {
		return err
	}

	sess := a.newSession(root, names)
	defer sess.Close()
	sess.Connection().Update(form)

	if err := sess.TestConnection(ctx); err != nil {
		printFieldErrors(cmd.ErrOrStderr(), sess.Connection().Errors().Fields())
		return fmt.Errorf("%w: %w", errConnectionInvalid, err)
	}
	if err := sess.ApplyFields(mf); err != nil {
		return err
	}
	if err := settle(ctx, sess, opts.SettleTimeout); err != nil {
		return err
	}

	job, err := sess.Job()
	if err != nil {
		printMappings(cmd.ErrOrStderr(), sess.Store().Mappings())
		printFieldErrors(cmd.ErrOrStderr(), sess.Connection().Errors().Fields())
		return err
	}
	if err := s.Save(ctx, job); err != nil {
		return err
	}
	logger.Infof("Saved data store %s as job %s", job.DataStore.Name, job.ID)
	return nil
}

func (a *app) runValidateProduct(cmd *cobra.Command, opts *ValidateProductOptions) error {
	form, err := config.LoadProduct(opts.ProductFile)
	if err != nil {
		return err
	}

	errs := validation.ValidateProductForm(form, opts.ExistingNames)
	out := cmd.OutOrStdout()
	if !errs.Valid() {
		printFieldErrors(out, errs.Fields())
		return errProductInvalid
	}
	fmt.Fprintf(out, "product %s ok\n", strings.TrimSpace(form.ProductName))
	return nil
}

func printMappings(out io.Writer, mappings []models.FieldMapping) {
	cell := lipgloss.NewStyle().Padding(0, 1)
	t := table.New().
		Border(lipgloss.NormalBorder()).
		StyleFunc(func(row, col int) lipgloss.Style { return cell }).
		Headers("#", "SOURCE", "TARGET", "TYPE", "PK", "EXPRESSION", "STATE", "ERRORS")

	for i, m := range mappings {
		source := strings.Join(m.SourcePath, ".")
		if m.IsManual() {
			source = "(manual)"
		}
		pk := ""
		if m.IsPK {
			pk = "*"
		}
		state := string(m.RuleValidationState)
		if state == "" {
			state = "-"
		}
		t.Row(strconv.Itoa(i), source, m.TargetField, string(m.DataType), pk, rules.Expression(m), state, fieldErrors(m))
	}
	fmt.Fprintln(out, t.Render())
}

func fieldErrors(m models.FieldMapping) string {
	var parts []string
	if m.TargetFieldError.IsSet() {
		parts = append(parts, "target:"+string(m.TargetFieldError))
	}
	if m.CleaningRuleError.IsSet() {
		parts = append(parts, "rule:"+string(m.CleaningRuleError))
	}
	if len(parts) == 0 {
		return "-"
	}
	return strings.Join(parts, ",")
}

func printFieldErrors(out io.Writer, fields map[string]models.FieldError) {
	keys := make([]string, 0, len(fields))
	for k, e := range fields {
		if e.IsSet() {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(out, "%s: %s\n", k, fields[k])
	}
}

func verdict(ok bool) string {
	if ok {
		return "ok"
	}
	return "invalid"
}

func writeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
