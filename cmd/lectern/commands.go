package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/lectern/lectern/internal/config"
)

// --- ingest ---

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Index a course document on the running server",
	Long: `Index a course document on the running server.

Examples:
  lectern ingest --file ./docs/course1.txt
  lectern ingest --text "Course Title: My Course ..."`,
	RunE: func(cmd *cobra.Command, args []string) error {
		text, _ := cmd.Flags().GetString("text")
		file, _ := cmd.Flags().GetString("file")

		if text == "" && file == "" {
			return fmt.Errorf("one of --text or --file is required")
		}
		if file != "" {
			data, err := os.ReadFile(file)
			if err != nil {
				return fmt.Errorf("reading file: %w", err)
			}
			text = string(data)
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post(cmd.Context(), "/api/ingest", map[string]any{"content": text})
		if err != nil {
			return err
		}

		var result struct {
			CourseTitle string `json:"course_title"`
			ChunkCount  int    `json:"chunk_count"`
			Skipped     bool   `json:"skipped"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		if result.Skipped {
			printWarning("Course %q already indexed, skipped", result.CourseTitle)
			return nil
		}
		printSuccess("Indexed %q (%d chunks)", result.CourseTitle, result.ChunkCount)
		return nil
	},
}

func init() {
	ingestCmd.Flags().String("text", "", "raw course document text")
	ingestCmd.Flags().String("file", "", "course document path")
}

// --- query ---

var queryCmd = &cobra.Command{
	Use:   "query <question>",
	Short: "Ask a question about the indexed courses",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		question := strings.Join(args, " ")
		sessionID, _ := cmd.Flags().GetString("session")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post(cmd.Context(), "/api/query", map[string]any{
			"query":      question,
			"session_id": sessionID,
		})
		if err != nil {
			return err
		}

		var result struct {
			Answer    string   `json:"answer"`
			Sources   []string `json:"sources"`
			SessionID string   `json:"session_id"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		fmt.Fprintln(os.Stdout, result.Answer)
		if len(result.Sources) > 0 {
			fmt.Fprintln(os.Stderr)
			printStep("Sources:")
			for _, src := range result.Sources {
				fmt.Fprintf(os.Stderr, "  - %s\n", src)
			}
		}
		printStatus("Session", "%s", result.SessionID)
		return nil
	},
}

func init() {
	queryCmd.Flags().String("session", "", "session id to continue a conversation")
}

// --- courses ---

var coursesCmd = &cobra.Command{
	Use:   "courses",
	Short: "List indexed courses",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/api/courses")
		if err != nil {
			return err
		}

		var analytics struct {
			TotalCourses int      `json:"total_courses"`
			TotalChunks  int      `json:"total_chunks"`
			CourseTitles []string `json:"course_titles"`
		}
		if err := decodeJSON(resp, &analytics); err != nil {
			return err
		}

		if analytics.TotalCourses == 0 {
			printWarning("No courses indexed")
			return nil
		}
		for _, title := range analytics.CourseTitles {
			fmt.Fprintf(os.Stdout, "%s\n", title)
		}
		printStatus("Courses", "%d", analytics.TotalCourses)
		printStatus("Chunks", "%d", analytics.TotalChunks)
		return nil
	},
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		for _, ki := range config.ShowAll(cfg) {
			fmt.Fprintf(os.Stdout, "%-32s %-40s %s\n", ki.Key, ki.Value, ki.EnvVar)
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]
		if err := config.SetKey(key, value); err != nil {
			return fmt.Errorf("%w\nvalid keys: %s", err, strings.Join(config.ValidKeys(), ", "))
		}
		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}
