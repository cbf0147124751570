// Command ipopo-demo boots a tiny framework instance, installs two demo
// bundles, wires a dependency through the iPOPO facade and prints what it
// did. It exists to exercise the whole stack end to end the way the
// teacher's own cmd/ entry points exercise their services.
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/tcalmant/ipopo-sub000/internal/compcontext"
	"github.com/tcalmant/ipopo-sub000/internal/framework"
	"github.com/tcalmant/ipopo-sub000/internal/ipopo"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var bootPropertiesPath string

	root := &cobra.Command{
		Use:   "ipopo-demo",
		Short: "Run a small iPOPO-style component framework demo",
	}

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Boot the framework, register a demo component and print its state",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDemo(cmd, bootPropertiesPath)
		},
	}
	runCmd.Flags().StringVar(&bootPropertiesPath, "boot-properties", "", "path to a YAML boot properties file")
	root.AddCommand(runCmd)

	return root
}

func runDemo(cmd *cobra.Command, bootPropertiesPath string) error {
	props := framework.DefaultProperties()
	if bootPropertiesPath != "" {
		loaded, err := framework.LoadProperties(bootPropertiesPath)
		if err != nil {
			return fmt.Errorf("loading boot properties: %w", err)
		}
		props = loaded
	}

	fw := framework.New(props)
	fmt.Fprintf(cmd.OutOrStdout(), "framework uid: %s\n", fw.UID())

	providerCtx := fw.InstallBundle("demo.provider")
	consumerCtx := fw.InstallBundle("demo.consumer")

	registration, err := providerCtx.RegisterService([]string{"example.Greeter"}, &greeterService{}, nil)
	if err != nil {
		return err
	}

	ipopoSvc := ipopo.New(consumerCtx)
	if err := ipopoSvc.RegisterFactory(&ipopo.Factory{
		Name: "demo.GreeterConsumer",
		Requirements: []compcontext.Requirement{
			{ID: "greeter", Specification: "example.Greeter"},
		},
		NewUserObject: func() any { return &greeterConsumer{out: cmd.OutOrStdout()} },
	}); err != nil {
		return err
	}

	inst, err := ipopoSvc.Instantiate("demo.GreeterConsumer", "consumer-1", nil)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "instance %q state: %s\n", inst.Name(), inst.State())

	refs, err := consumerCtx.FindReferences("example.Greeter", "")
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "registry has %d matching reference(s)\n", len(refs))

	if err := registration.Unregister(); err != nil {
		return err
	}
	return fw.StopBundle(providerCtx.Bundle().ID())
}

type greeterService struct{}

func (g *greeterService) Greet() string { return "hello from the demo bundle" }

type greeterConsumer struct {
	out io.Writer
}

func (c *greeterConsumer) Validate() error { return nil }
func (c *greeterConsumer) Invalidate()     {}
func (c *greeterConsumer) OnBind(requirementID string, service any) {
	if requirementID != "greeter" {
		return
	}
	if g, ok := service.(*greeterService); ok {
		fmt.Fprintln(c.out, g.Greet())
	}
}
