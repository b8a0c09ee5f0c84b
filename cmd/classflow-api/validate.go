package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	cli "github.com/urfave/cli/v3"

	"github.com/classflow/classflow/pkg/models"
	"github.com/classflow/classflow/pkg/workflow"
)

// NewValidateCommand checks a workflow definition file against the step
// schema and graph rules without touching any backend.
func NewValidateCommand() *cli.Command {
	return &cli.Command{
		Name:    "validate",
		Aliases: []string{"v"},
		Usage:   "Validate a workflow definition file",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "file",
				Aliases:  []string{"f"},
				Usage:    "Path to a workflow definition JSON file",
				Required: true,
			},
		},
		Action: func(_ context.Context, command *cli.Command) error {
			path := command.String("file")

			data, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("failed to read %s: %w", path, err)
			}

			var definition models.WorkflowDefinition
			if err := json.Unmarshal(data, &definition); err != nil {
				return fmt.Errorf("failed to parse %s: %w", path, err)
			}

			validate := validator.New(validator.WithRequiredStructEnabled())

			fmt.Printf("Validating %s\n", path)

			valid := true

			if err := validate.Struct(definition); err != nil {
				fmt.Printf("  ❌ INVALID: %v\n", err)

				valid = false
			}

			if !models.ValidEventName(definition.Trigger.EventName) {
				fmt.Printf("  ❌ INVALID: trigger event name %q does not match the allow-pattern\n",
					definition.Trigger.EventName)

				valid = false
			}

			if err := workflow.ValidateDefinition(&definition.Definition); err != nil {
				fmt.Printf("  ❌ INVALID: %v\n", err)

				valid = false
			}

			if !valid {
				return fmt.Errorf("definition %s is invalid", path)
			}

			fmt.Println("  ✅ VALID")

			return nil
		},
	}
}
