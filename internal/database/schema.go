package database

import (
	"context"
	"fmt"

	entsql "entgo.io/ent/dialect/sql"
	"entgo.io/ent/dialect/sql/schema"
	"entgo.io/ent/schema/field"
	"github.com/jmoiron/sqlx"

	"github.com/gurkanbulca/taskassign/internal/models"
)

var (
	// UsersColumns holds the columns for the "users" table.
	UsersColumns = []*schema.Column{
		{Name: "id", Type: field.TypeUUID},
		{Name: "email", Type: field.TypeString, Unique: true, Size: 255},
		{Name: "password_hash", Type: field.TypeString},
		{Name: "role", Type: field.TypeEnum, Enums: []string{"admin", "employee"}, Default: "employee"},
		{Name: "failed_login_attempts", Type: field.TypeInt, Default: 0},
		{Name: "account_locked_until", Type: field.TypeTime, Nullable: true},
		{Name: "last_login", Type: field.TypeTime, Nullable: true},
		{Name: "refresh_token", Type: field.TypeString, Nullable: true, Size: 2147483647},
		{Name: "refresh_token_expires_at", Type: field.TypeTime, Nullable: true},
		{Name: "created_at", Type: field.TypeTime},
		{Name: "updated_at", Type: field.TypeTime},
	}
	// UsersTable holds the schema information for the "users" table.
	UsersTable = &schema.Table{
		Name:       "users",
		Columns:    UsersColumns,
		PrimaryKey: []*schema.Column{UsersColumns[0]},
		Indexes: []*schema.Index{
			{
				Name:    "user_role",
				Unique:  false,
				Columns: []*schema.Column{UsersColumns[3]},
			},
		},
	}
	// TasksColumns holds the columns for the "tasks" table.
	TasksColumns = []*schema.Column{
		{Name: "id", Type: field.TypeUUID},
		{Name: "title", Type: field.TypeString},
		{Name: "description", Type: field.TypeString, Size: 2147483647, Default: ""},
		{Name: "status", Type: field.TypeEnum, Enums: statusEnums(), Default: string(models.StatusNew)},
		{Name: "priority", Type: field.TypeEnum, Enums: priorityEnums(), Default: string(models.PriorityMedium)},
		{Name: "category", Type: field.TypeString, Default: ""},
		{Name: "due_date", Type: field.TypeTime, Nullable: true},
		{Name: "version", Type: field.TypeInt, Default: 1},
		{Name: "created_at", Type: field.TypeTime},
		{Name: "updated_at", Type: field.TypeTime},
		{Name: "assigned_to", Type: field.TypeUUID},
		{Name: "created_by", Type: field.TypeUUID},
	}
	// TasksTable holds the schema information for the "tasks" table.
	TasksTable = &schema.Table{
		Name:       "tasks",
		Columns:    TasksColumns,
		PrimaryKey: []*schema.Column{TasksColumns[0]},
		ForeignKeys: []*schema.ForeignKey{
			{
				Symbol:     "tasks_users_assigned_tasks",
				Columns:    []*schema.Column{TasksColumns[10]},
				RefColumns: []*schema.Column{UsersColumns[0]},
				OnDelete:   schema.Cascade,
			},
		},
		Indexes: []*schema.Index{
			{
				Name:    "task_assigned_to",
				Unique:  false,
				Columns: []*schema.Column{TasksColumns[10]},
			},
			{
				Name:    "task_status",
				Unique:  false,
				Columns: []*schema.Column{TasksColumns[3]},
			},
			{
				Name:    "task_assigned_to_status",
				Unique:  false,
				Columns: []*schema.Column{TasksColumns[10], TasksColumns[3]},
			},
			{
				Name:    "task_created_at",
				Unique:  false,
				Columns: []*schema.Column{TasksColumns[8]},
			},
		},
	}
	// SecurityEventsColumns holds the columns for the "security_events" table.
	SecurityEventsColumns = []*schema.Column{
		{Name: "id", Type: field.TypeUUID},
		{Name: "user_id", Type: field.TypeUUID, Nullable: true},
		{Name: "event_type", Type: field.TypeString},
		{Name: "severity", Type: field.TypeString, Default: "low"},
		{Name: "description", Type: field.TypeString, Size: 2147483647},
		{Name: "ip_address", Type: field.TypeString, Default: ""},
		{Name: "user_agent", Type: field.TypeString, Default: ""},
		{Name: "created_at", Type: field.TypeTime},
	}
	// SecurityEventsTable holds the schema information for the "security_events" table.
	SecurityEventsTable = &schema.Table{
		Name:       "security_events",
		Columns:    SecurityEventsColumns,
		PrimaryKey: []*schema.Column{SecurityEventsColumns[0]},
		Indexes: []*schema.Index{
			{
				Name:    "securityevent_user_id_created_at",
				Unique:  false,
				Columns: []*schema.Column{SecurityEventsColumns[1], SecurityEventsColumns[7]},
			},
			{
				Name:    "securityevent_event_type",
				Unique:  false,
				Columns: []*schema.Column{SecurityEventsColumns[2]},
			},
		},
	}
	// Tables holds all the tables in the schema.
	Tables = []*schema.Table{
		UsersTable,
		TasksTable,
		SecurityEventsTable,
	}
)

func init() {
	TasksTable.ForeignKeys[0].RefTable = UsersTable
}

func statusEnums() []string {
	out := make([]string, len(models.Statuses))
	for i, s := range models.Statuses {
		out[i] = string(s)
	}
	return out
}

func priorityEnums() []string {
	out := make([]string, len(models.Priorities))
	for i, p := range models.Priorities {
		out[i] = string(p)
	}
	return out
}

// Migrate creates or updates all tables.
func Migrate(ctx context.Context, db *sqlx.DB) error {
	drv := entsql.OpenDB(Dialect(db), db.DB)

	migrate, err := schema.NewMigrate(drv,
		schema.WithDropIndex(true),
		schema.WithForeignKeys(true),
	)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}
	if err := migrate.Create(ctx, Tables...); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}
