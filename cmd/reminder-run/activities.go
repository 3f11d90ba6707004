package main

import (
	"github.com/spf13/cobra"

	der "expiry-reminders/internal/workers/reminders/dispatch-expiry-reminders"
	rti "expiry-reminders/internal/workers/reminders/register-tracked-item"
	"expiry-reminders/pkg/registry"
)

func activityRegistry() *registry.ActivityRegistry {
	return registry.New(version, der.Activity(), rti.Activity())
}

func activitiesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "activities",
		Short: "Print the service tasks this service implements",
		Long: `Print the activity registry as JSON: every Zeebe task type with its input
schema, output variables and error codes, for wiring into BPMN models.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			reg := activityRegistry()
			if err := reg.Validate(); err != nil {
				return err
			}
			return reg.Write(cmd.OutOrStdout())
		},
	}
}
