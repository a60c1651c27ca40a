// Command client is a terminal client for the task assignment API.
package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/gurkanbulca/taskassign/internal/models"
)

var (
	serverURL string
	tokenFlag string

	filterStatus string

	createTitle       string
	createDescription string
	createAssignee    string
	createPriority    string
	createCategory    string
	createDue         string

	statusVersion int
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "taskassign",
		Short:         "Work with assigned tasks from the terminal",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().StringVar(&serverURL, "server", envOr("TASKASSIGN_SERVER", "http://localhost:5000"), "API base URL")
	root.PersistentFlags().StringVar(&tokenFlag, "token", os.Getenv("TASKASSIGN_TOKEN"), "access token (defaults to the saved login)")

	root.AddCommand(loginCmd(), tasksCmd(), employeesCmd())
	return root
}

func client() *APIClient {
	token := tokenFlag
	if token == "" {
		token, _ = loadToken()
	}
	return NewAPIClient(strings.TrimRight(serverURL, "/"), token)
}

func loginCmd() *cobra.Command {
	var email, password string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in and save the access token",
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := client().Login(email, password)
			if err != nil {
				return err
			}
			if err := saveToken(res.AccessToken); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Logged in as %s (%s)\n", res.User.Email, res.User.Role)
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "account email")
	cmd.Flags().StringVar(&password, "password", "", "account password")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

func tasksCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tasks",
		Short: "List, create and update tasks",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List every task (admins)",
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := client().ListTasks(filterStatus)
			if err != nil {
				return err
			}
			renderTasks(cmd.OutOrStdout(), res.Tasks)
			return nil
		},
	}
	list.Flags().StringVar(&filterStatus, "status", "", "only tasks in this status")

	mine := &cobra.Command{
		Use:   "mine",
		Short: "List tasks assigned to you",
		RunE: func(cmd *cobra.Command, args []string) error {
			c := client()
			me, err := c.Me()
			if err != nil {
				return err
			}
			res, err := c.ListUserTasks(me.ID, filterStatus)
			if err != nil {
				return err
			}
			renderTasks(cmd.OutOrStdout(), res.Tasks)
			return nil
		},
	}
	mine.Flags().StringVar(&filterStatus, "status", "", "only tasks in this status")

	stats := &cobra.Command{
		Use:   "stats",
		Short: "Count tasks per status",
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := client().Stats()
			if err != nil {
				return err
			}
			renderStats(cmd.OutOrStdout(), res)
			return nil
		},
	}

	create := &cobra.Command{
		Use:   "create",
		Short: "Assign a new task to an employee (admins)",
		RunE: func(cmd *cobra.Command, args []string) error {
			task, err := client().CreateTask(fiber.Map{
				"title":       createTitle,
				"description": createDescription,
				"assignedTo":  createAssignee,
				"priority":    createPriority,
				"category":    createCategory,
				"dueDate":     createDue,
			})
			if err != nil {
				return err
			}
			renderTasks(cmd.OutOrStdout(), []*models.Task{task})
			return nil
		},
	}
	create.Flags().StringVar(&createTitle, "title", "", "task title")
	create.Flags().StringVar(&createDescription, "description", "", "task description")
	create.Flags().StringVar(&createAssignee, "assignee", "", "employee id")
	create.Flags().StringVar(&createPriority, "priority", "medium", "low, medium or high")
	create.Flags().StringVar(&createCategory, "category", "", "task category")
	create.Flags().StringVar(&createDue, "due", "", "due date, YYYY-MM-DD")
	for _, f := range []string{"title", "assignee", "category", "due"} {
		_ = create.MarkFlagRequired(f)
	}

	status := &cobra.Command{
		Use:   "status <task-id> <status>",
		Short: "Move a task to a new status",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			task, err := client().UpdateStatus(args[0], args[1], statusVersion)
			if err != nil {
				return err
			}
			renderTasks(cmd.OutOrStdout(), []*models.Task{task})
			return nil
		},
	}
	status.Flags().IntVar(&statusVersion, "version", 0, "fail if the task is no longer at this version")

	del := &cobra.Command{
		Use:   "delete <task-id>",
		Short: "Delete a task (admins)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := client().DeleteTask(args[0]); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Deleted", args[0])
			return nil
		},
	}

	cmd.AddCommand(list, mine, stats, create, status, del)
	return cmd
}

func employeesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "employees",
		Short: "List employees that tasks can be assigned to (admins)",
		RunE: func(cmd *cobra.Command, args []string) error {
			users, err := client().Employees()
			if err != nil {
				return err
			}
			table := tablewriter.NewWriter(cmd.OutOrStdout())
			table.SetHeader([]string{"ID", "Email", "Last login"})
			for _, u := range users {
				last := "-"
				if u.LastLogin != nil {
					last = u.LastLogin.Local().Format("2006-01-02 15:04")
				}
				table.Append([]string{u.ID, u.Email, last})
			}
			table.Render()
			return nil
		},
	}
}

func renderTasks(w io.Writer, tasks []*models.Task) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"ID", "Title", "Status", "Priority", "Category", "Due", "Version"})
	for _, t := range tasks {
		due := "-"
		if t.DueDate != nil {
			due = t.DueDate.Format("2006-01-02")
		}
		table.Append([]string{
			t.ID,
			t.Title,
			string(t.Status),
			string(t.Priority),
			t.Category,
			due,
			fmt.Sprint(t.Version),
		})
	}
	table.Render()
}

func renderStats(w io.Writer, res *statsResponse) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Status", "Tasks"})
	for _, s := range models.Statuses {
		table.Append([]string{string(s), fmt.Sprint(res.Stats[s])})
	}
	table.SetFooter([]string{"Total", fmt.Sprint(res.Total)})
	table.Render()
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func tokenPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "taskassign", "token"), nil
}

func saveToken(token string) error {
	p, err := tokenPath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o700); err != nil {
		return err
	}
	return os.WriteFile(p, []byte(token), 0o600)
}

func loadToken() (string, error) {
	p, err := tokenPath()
	if err != nil {
		return "", err
	}
	b, err := os.ReadFile(p)
	if errors.Is(err, os.ErrNotExist) {
		return "", nil
	}
	return strings.TrimSpace(string(b)), err
}
