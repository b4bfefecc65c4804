package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ehr/intake/internal/config"
	"github.com/ehr/intake/internal/domain/intake"
	"github.com/ehr/intake/internal/platform/export"
	"github.com/ehr/intake/internal/platform/fhir"
	"github.com/ehr/intake/internal/platform/i18n"
)

var (
	errInvalidIntake = errors.New("intake is invalid")
	errSchemaCheck   = errors.New("record does not match the patient profile schema")
)

func convertCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "convert",
		Short: "Convert an intake JSON document to a FHIR Patient record",
		Long: "Reads a flat intake JSON object, validates it and prints the FHIR Patient record.\n" +
			"With --save the record is also written to <out-dir>/<prefix>-<YYYY-MM-DD>.json;\n" +
			"with --clipboard it is copied to the system clipboard.",
		RunE: runConvert,
	}
	cmd.Flags().StringP("input", "i", "-", "intake JSON file (- for stdin)")
	cmd.Flags().String("lang", "", "message language (defaults to DEFAULT_LOCALE)")
	cmd.Flags().Bool("save", false, "write the record to the export directory")
	cmd.Flags().String("out-dir", "", "export directory (defaults to EXPORT_DIR)")
	cmd.Flags().Bool("clipboard", false, "copy the record to the clipboard")
	cmd.Flags().Bool("check", false, "check the record against the patient profile schema")
	return cmd
}

func runConvert(cmd *cobra.Command, _ []string) error {
	cfg, err := loadCLIConfig()
	if err != nil {
		return err
	}
	logger := newCLILogger(cmd)
	svc, catalog, err := newIntakeService(cfg, logger)
	if err != nil {
		return err
	}

	in, err := readIntakeFrom(cmd, flagString(cmd, "input"))
	if err != nil {
		return err
	}
	locale := catalog.Match(flagString(cmd, "lang"))

	rec, err := svc.Convert(cmd.Context(), in, locale)
	if err != nil {
		var verr *intake.ValidationError
		if errors.As(err, &verr) {
			printValidationErrors(cmd.ErrOrStderr(), catalog, verr.Result)
			return errInvalidIntake
		}
		return err
	}

	p, err := svc.Payload(rec)
	if err != nil {
		return err
	}

	if check, _ := cmd.Flags().GetBool("check"); check {
		if err := checkSchema(cmd.ErrOrStderr(), p.Data); err != nil {
			return err
		}
	}

	if _, err := cmd.OutOrStdout().Write(p.Data); err != nil {
		return fmt.Errorf("write record: %w", err)
	}
	fmt.Fprintln(cmd.ErrOrStderr(), catalog.Message(locale, "converted"))

	var exportErr error
	if save, _ := cmd.Flags().GetBool("save"); save {
		dir := flagString(cmd, "out-dir")
		if dir == "" {
			dir = cfg.ExportDir
		}
		fe := export.NewFileExporter(dir)
		if _, err := svc.Export(cmd.Context(), rec, fe); err != nil {
			exportErr = errors.Join(exportErr, err)
		} else {
			fmt.Fprintf(cmd.ErrOrStderr(), "%s: %s\n", catalog.Message(locale, "downloaded"), fe.Path(p.Filename))
		}
	}
	if cb, _ := cmd.Flags().GetBool("clipboard"); cb {
		if _, err := svc.Export(cmd.Context(), rec, export.NewClipboardExporter()); err != nil {
			fmt.Fprintln(cmd.ErrOrStderr(), catalog.Message(locale, "copy_failed"))
			exportErr = errors.Join(exportErr, err)
		} else {
			fmt.Fprintln(cmd.ErrOrStderr(), catalog.Message(locale, "copied"))
		}
	}
	return exportErr
}

func validateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate an intake JSON document and print the result",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadCLIConfig()
			if err != nil {
				return err
			}
			svc, catalog, err := newIntakeService(cfg, newCLILogger(cmd))
			if err != nil {
				return err
			}
			in, err := readIntakeFrom(cmd, flagString(cmd, "input"))
			if err != nil {
				return err
			}

			result := svc.Validate(cmd.Context(), in, catalog.Match(flagString(cmd, "lang")))
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(result); err != nil {
				return fmt.Errorf("write result: %w", err)
			}
			if !result.Valid {
				return errInvalidIntake
			}
			return nil
		},
	}
	cmd.Flags().StringP("input", "i", "-", "intake JSON file (- for stdin)")
	cmd.Flags().String("lang", "", "message language (defaults to DEFAULT_LOCALE)")
	return cmd
}

func schemaCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "schema",
		Short: "Print the JSON Schema of generated Patient records",
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := cmd.OutOrStdout().Write(fhir.PatientRecordSchema())
			return err
		},
	}
}

func localesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "locales",
		Short: "List supported form languages",
		RunE: func(cmd *cobra.Command, _ []string) error {
			catalog, err := i18n.Default()
			if err != nil {
				return err
			}
			for _, code := range catalog.Supported() {
				line := fmt.Sprintf("%s\t%s", code, catalog.Name(code))
				if code == catalog.DefaultLocale() {
					line += "\t(default)"
				}
				fmt.Fprintln(cmd.OutOrStdout(), line)
			}
			return nil
		},
	}
}

func loadCLIConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

func readIntakeFrom(cmd *cobra.Command, path string) (intake.FlatIntake, error) {
	var r io.Reader = cmd.InOrStdin()
	if path != "" && path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return intake.FlatIntake{}, fmt.Errorf("open intake: %w", err)
		}
		defer f.Close()
		r = f
	}
	return decodeIntake(r)
}

// decodeIntake rejects non-string field values; unknown fields are ignored.
func decodeIntake(r io.Reader) (intake.FlatIntake, error) {
	var in intake.FlatIntake
	if err := json.NewDecoder(r).Decode(&in); err != nil {
		return intake.FlatIntake{}, fmt.Errorf("decode intake: %w", err)
	}
	return in, nil
}

func printValidationErrors(w io.Writer, catalog *i18n.Catalog, result *intake.ValidationResult) {
	fmt.Fprintln(w, catalog.Message(result.Locale, "form_invalid"))
	for _, field := range result.Fields() {
		fmt.Fprintf(w, "  %s: %s\n", catalog.Label(result.Locale, field), result.Errors[field])
	}
}

func checkSchema(w io.Writer, data []byte) error {
	sv, err := fhir.NewSchemaValidator()
	if err != nil {
		return err
	}
	result := sv.Validate(data)
	if result.Valid {
		return nil
	}
	for _, issue := range result.Issues {
		fmt.Fprintf(w, "  %s: %s\n", strings.Join(issue.Expression, ","), issue.Diagnostics)
	}
	return errSchemaCheck
}
