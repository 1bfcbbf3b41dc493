package migration

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"text/tabwriter"
)

// ErrUnknownCommand 不支持的 migrate 子命令
var ErrUnknownCommand = errors.New("unknown migrate subcommand")

// CLI 把 migrate 子命令映射到 Migrator 调用并输出结果
type CLI struct {
	migrator Migrator
	output   io.Writer
}

// NewCLI 创建输出到 stdout 的 CLI
func NewCLI(migrator Migrator) *CLI {
	return &CLI{
		migrator: migrator,
		output:   os.Stdout,
	}
}

// SetOutput 替换输出目标
func (c *CLI) SetOutput(w io.Writer) {
	c.output = w
}

// Run 执行 migrate 子命令：up、down、reset、steps N、goto V、force V、status、version、info。
// 变更类子命令完成后打印当前 schema 版本。
func (c *CLI) Run(ctx context.Context, sub string, args []string) error {
	var (
		apply func() error
		start string
	)

	switch sub {
	case "status":
		return c.printStatus(ctx)
	case "version":
		return c.printVersion(ctx)
	case "info":
		return c.printInfo(ctx)
	case "up":
		start, apply = "Running migrations...", func() error { return c.migrator.Up(ctx) }
	case "down":
		start, apply = "Rolling back last migration...", func() error { return c.migrator.Down(ctx) }
	case "reset":
		start, apply = "Rolling back all migrations...", func() error { return c.migrator.DownAll(ctx) }
	case "steps", "goto", "force":
		n, err := numberArg(sub, args)
		if err != nil {
			return err
		}
		switch sub {
		case "steps":
			start = fmt.Sprintf("Applying %d migration(s)...", n)
			if n < 0 {
				start = fmt.Sprintf("Rolling back %d migration(s)...", -n)
			}
			apply = func() error { return c.migrator.Steps(ctx, n) }
		case "goto":
			if n < 0 {
				return fmt.Errorf("migrate goto: version must not be negative")
			}
			start = fmt.Sprintf("Migrating to version %d...", n)
			apply = func() error { return c.migrator.Goto(ctx, uint(n)) }
		default:
			start = fmt.Sprintf("Forcing version to %d...", n)
			apply = func() error { return c.migrator.Force(ctx, n) }
		}
	default:
		return fmt.Errorf("%w: %s", ErrUnknownCommand, sub)
	}

	fmt.Fprintln(c.output, start)
	if err := apply(); err != nil {
		return fmt.Errorf("migrate %s failed: %w", sub, err)
	}

	version, dirty, err := c.migrator.Version(ctx)
	if err != nil {
		return fmt.Errorf("failed to get version: %w", err)
	}
	fmt.Fprintf(c.output, "Done. Current version: %d", version)
	if dirty {
		fmt.Fprint(c.output, " (dirty)")
	}
	fmt.Fprintln(c.output)
	return nil
}

func numberArg(sub string, args []string) (int, error) {
	if len(args) < 1 {
		return 0, fmt.Errorf("migrate %s requires a number", sub)
	}
	n, err := strconv.Atoi(args[0])
	if err != nil {
		return 0, fmt.Errorf("migrate %s: invalid number %q", sub, args[0])
	}
	return n, nil
}

func (c *CLI) printVersion(ctx context.Context) error {
	version, dirty, err := c.migrator.Version(ctx)
	if err != nil {
		return fmt.Errorf("failed to get version: %w", err)
	}
	if version == 0 {
		fmt.Fprintln(c.output, "No migrations applied yet.")
		return nil
	}
	fmt.Fprintf(c.output, "Current version: %d", version)
	if dirty {
		fmt.Fprint(c.output, " (dirty)")
	}
	fmt.Fprintln(c.output)
	return nil
}

// printStatus 按版本列出迁移及其状态，末尾给出汇总
func (c *CLI) printStatus(ctx context.Context) error {
	statuses, err := c.migrator.Status(ctx)
	if err != nil {
		return fmt.Errorf("failed to get status: %w", err)
	}
	if len(statuses) == 0 {
		fmt.Fprintln(c.output, "No migrations found.")
		return nil
	}

	w := tabwriter.NewWriter(c.output, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "VERSION\tNAME\tSTATUS")
	for _, s := range statuses {
		state := "Pending"
		switch {
		case s.Dirty:
			state = "Dirty"
		case s.Applied:
			state = "Applied"
		}
		fmt.Fprintf(w, "%06d\t%s\t%s\n", s.Version, s.Name, state)
	}
	if err := w.Flush(); err != nil {
		return err
	}

	info, err := c.migrator.Info(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.output, "\nTotal: %d, Applied: %d, Pending: %d\n",
		info.TotalMigrations, info.AppliedMigrations, info.PendingMigrations)
	return nil
}

func (c *CLI) printInfo(ctx context.Context) error {
	info, err := c.migrator.Info(ctx)
	if err != nil {
		return fmt.Errorf("failed to get info: %w", err)
	}
	w := tabwriter.NewWriter(c.output, 0, 0, 1, ' ', 0)
	fmt.Fprintln(w, "Migration Information:")
	fmt.Fprintf(w, "  Current Version:\t%d\n", info.CurrentVersion)
	fmt.Fprintf(w, "  Dirty:\t%v\n", info.Dirty)
	fmt.Fprintf(w, "  Total Migrations:\t%d\n", info.TotalMigrations)
	fmt.Fprintf(w, "  Applied Migrations:\t%d\n", info.AppliedMigrations)
	fmt.Fprintf(w, "  Pending Migrations:\t%d\n", info.PendingMigrations)
	return w.Flush()
}
