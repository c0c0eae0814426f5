package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	commands "fieldops-cloud/internal/commands/domain"
	templatesapp "fieldops-cloud/internal/templates/application"
	templates "fieldops-cloud/internal/templates/domain"

	"github.com/spf13/cobra"
)

var errTemplateInvalid = errors.New("template is invalid")

func newTemplateCommand() *cobra.Command {
	templateCmd := &cobra.Command{
		Use:   "template",
		Short: "Work with command templates offline",
	}

	var (
		file string
		sets []string
	)
	validateCmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate a YAML template and render it with --set values",
		RunE: func(cmd *cobra.Command, _ []string) error {
			data, err := os.ReadFile(file)
			if err != nil {
				return err
			}
			values, err := parseSets(sets)
			if err != nil {
				return err
			}
			return validateTemplate(cmd.OutOrStdout(), data, values)
		},
	}
	validateCmd.Flags().StringVarP(&file, "file", "f", "", "template YAML file")
	validateCmd.Flags().StringArrayVar(&sets, "set", nil, "variable value as name=value (repeatable)")
	_ = validateCmd.MarkFlagRequired("file")

	templateCmd.AddCommand(validateCmd)
	return templateCmd
}

// validateTemplate checks the definition and, when values are given, renders
// the template with its defaults applied.
func validateTemplate(out io.Writer, data []byte, values map[string]commands.Value) error {
	tpl, err := templatesapp.ParseTemplate(data)
	if err != nil {
		return err
	}
	var merged map[string]commands.Value
	if values != nil {
		merged = tpl.WithDefaults(values)
	}
	if errs := templates.Validate(tpl.Body, tpl.Variables, merged); len(errs) > 0 {
		for _, problem := range errs {
			fmt.Fprintf(out, "error: %s\n", problem)
		}
		return errTemplateInvalid
	}
	fmt.Fprintln(out, "template is valid")
	if merged != nil {
		fmt.Fprintln(out, templates.Render(tpl.Body, merged))
	}
	return nil
}

func parseSets(sets []string) (map[string]commands.Value, error) {
	if len(sets) == 0 {
		return nil, nil
	}
	values := make(map[string]commands.Value, len(sets))
	for _, item := range sets {
		name, raw, ok := strings.Cut(item, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid --set %q, expected name=value", item)
		}
		values[name] = commands.ParseScalar(raw)
	}
	return values, nil
}
