package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/sluicehq/sluice/internal/openapi"
)

func newOpenAPICmd() *cobra.Command {
	var (
		baseURL    string
		outputFile string
	)

	cmd := &cobra.Command{
		Use:   "openapi",
		Short: "Generate the OpenAPI specification",
		Long: `Generate the OpenAPI 3.1 document for the token endpoints and the system API.
OAuth2 scopes are taken from the tenant's scope catalog and connection inputs
from the supported engines.`,
		Example: `  sluice openapi                          # print to stdout
  sluice openapi --tenant acme -o spec.json
  sluice openapi --base-url https://auth.example.com`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(false)
			if err != nil {
				return err
			}
			defer a.Close()

			scopes, err := a.directory.ListScopes(cmd.Context(), a.tenant)
			if err != nil {
				return fmt.Errorf("list scopes: %w", err)
			}
			doc := openapi.Generate(openapi.Options{
				Version: versionString(),
				BaseURL: baseURL,
				Scopes:  scopes,
				Engines: openapi.EngineSchemas(a.registry),
			})

			jsonBytes, err := json.MarshalIndent(doc, "", "  ")
			if err != nil {
				return fmt.Errorf("marshal spec: %w", err)
			}
			if outputFile != "" {
				if err := os.WriteFile(outputFile, jsonBytes, 0644); err != nil {
					return err
				}
				fmt.Printf("Wrote %s\n", outputFile)
				return nil
			}
			fmt.Println(string(jsonBytes))
			return nil
		},
	}

	cmd.Flags().StringVar(&baseURL, "base-url", "", "Server URL to list in the document")
	cmd.Flags().StringVarP(&outputFile, "output", "o", "", "Write spec to file instead of stdout")

	return cmd
}
