package cli

import (
	"time"

	"github.com/spf13/cobra"
)

const defaultSettleTimeout = 30 * time.Second

type TreeOptions struct {
	SampleFile string
	Root       string
	JSON       bool
}

// MappingOptions are shared by the commands that apply a mapping file to a
// sample.
type MappingOptions struct {
	SampleFile    string
	MappingFile   string
	Root          string
	SettleTimeout time.Duration
}

type TestConnectionOptions struct {
	ConnectionFile string
	Root           string
	OutFile        string
}

type SaveOptions struct {
	ConnectionFile string
	MappingFile    string
	Root           string
	Migrate        bool
	SettleTimeout  time.Duration
}

type ValidateProductOptions struct {
	ProductFile   string
	ExistingNames []string
}

func NewTreeCmd(a *app) *cobra.Command {
	opts := &TreeOptions{}

	cmd := &cobra.Command{
		Use:   "tree",
		Short: "Print the schema tree of a sample JSON document",
		RunE: func(c *cobra.Command, args []string) error {
			return a.runTree(c, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.SampleFile, "sample", "s", "", "Path to the sample JSON file (- for stdin)")
	cmd.Flags().StringVarP(&opts.Root, "root", "r", "", "gjson path of the sub-document to use as sample")
	cmd.Flags().BoolVar(&opts.JSON, "json", false, "Print the tree as JSON")
	cmd.MarkFlagRequired("sample")

	return cmd
}

func addMappingFlags(cmd *cobra.Command, opts *MappingOptions) {
	cmd.Flags().StringVarP(&opts.SampleFile, "sample", "s", "", "Path to the sample JSON file (- for stdin)")
	cmd.Flags().StringVarP(&opts.MappingFile, "mapping", "m", "", "Path to the mapping file (JSON or YAML)")
	cmd.Flags().StringVarP(&opts.Root, "root", "r", "", "gjson path of the sub-document to use as sample (overrides the mapping file)")
	cmd.Flags().DurationVar(&opts.SettleTimeout, "timeout", defaultSettleTimeout, "How long to wait for rule validation")
	cmd.MarkFlagRequired("sample")
	cmd.MarkFlagRequired("mapping")
}

func NewValidateCmd(a *app) *cobra.Command {
	opts := &MappingOptions{}

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate a mapping file against a sample",
		RunE: func(c *cobra.Command, args []string) error {
			return a.runValidate(c, opts)
		},
	}
	addMappingFlags(cmd, opts)

	return cmd
}

func NewPreviewCmd(a *app) *cobra.Command {
	opts := &MappingOptions{}

	cmd := &cobra.Command{
		Use:   "preview",
		Short: "Evaluate a mapping file against a sample and print the output row",
		RunE: func(c *cobra.Command, args []string) error {
			return a.runPreview(c, opts)
		},
	}
	addMappingFlags(cmd, opts)

	return cmd
}

func NewTestConnectionCmd(a *app) *cobra.Command {
	opts := &TestConnectionOptions{}

	cmd := &cobra.Command{
		Use:   "test-connection",
		Short: "Call the endpoint described by a connection file and capture a sample",
		RunE: func(c *cobra.Command, args []string) error {
			return a.runTestConnection(c, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.ConnectionFile, "connection", "c", "", "Path to the connection file (JSON or YAML)")
	cmd.Flags().StringVarP(&opts.Root, "root", "r", "", "gjson path of the sub-document to use as sample")
	cmd.Flags().StringVarP(&opts.OutFile, "out", "o", "", "Write the fetched sample to this file")
	cmd.MarkFlagRequired("connection")

	return cmd
}

func NewSaveCmd(a *app) *cobra.Command {
	opts := &SaveOptions{}

	cmd := &cobra.Command{
		Use:   "save",
		Short: "Test the connection, validate the mapping and save the data store job",
		RunE: func(c *cobra.Command, args []string) error {
			return a.runSave(c, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.ConnectionFile, "connection", "c", "", "Path to the connection file (JSON or YAML)")
	cmd.Flags().StringVarP(&opts.MappingFile, "mapping", "m", "", "Path to the mapping file (JSON or YAML)")
	cmd.Flags().StringVarP(&opts.Root, "root", "r", "", "gjson path of the sub-document to use as sample (overrides the mapping file)")
	cmd.Flags().BoolVar(&opts.Migrate, "migrate", false, "Create the sink storage before saving")
	cmd.Flags().DurationVar(&opts.SettleTimeout, "timeout", defaultSettleTimeout, "How long to wait for rule validation")
	cmd.MarkFlagRequired("connection")
	cmd.MarkFlagRequired("mapping")

	return cmd
}

func NewValidateProductCmd(a *app) *cobra.Command {
	opts := &ValidateProductOptions{}

	cmd := &cobra.Command{
		Use:   "validate-product",
		Short: "Validate a data product form",
		RunE: func(c *cobra.Command, args []string) error {
			return a.runValidateProduct(c, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.ProductFile, "product", "p", "", "Path to the product file (JSON or YAML)")
	cmd.Flags().StringSliceVar(&opts.ExistingNames, "existing", nil, "Product names already taken")
	cmd.MarkFlagRequired("product")

	return cmd
}
