package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/peterh/liner"
	"github.com/spf13/pflag"

	"github.com/tegdb/tegdb/pkg/database"
	"github.com/tegdb/tegdb/pkg/executor"
	"github.com/tegdb/tegdb/pkg/sql"
	"github.com/tegdb/tegdb/pkg/wal"
)

func main() {
	var (
		command    = pflag.String("command", "", "execute a single SQL command and exit")
		scriptPath = pflag.String("file", "", "execute SQL statements from a file and exit")
		configPath = pflag.String("config", "", "engine configuration file (HuJSON)")
	)
	pflag.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: tg <db-url> [--command SQL | --file PATH] [--config PATH]\n")
		pflag.PrintDefaults()
	}
	pflag.Parse()

	if pflag.NArg() != 1 {
		pflag.Usage()
		os.Exit(2)
	}

	opts := wal.DefaultOptions()
	if *configPath != "" {
		loaded, err := database.LoadConfig(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "tg: %v\n", err)
			os.Exit(1)
		}
		opts = loaded
	}

	db, err := database.OpenWith(pflag.Arg(0), opts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "tg: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	sh := &shell{db: db, out: os.Stdout, mode: "list"}

	switch {
	case *command != "":
		if err := sh.runScript(*command); err != nil {
			fmt.Fprintf(os.Stderr, "tg: %v\n", err)
			os.Exit(1)
		}
	case *scriptPath != "":
		if err := sh.runFile(*scriptPath); err != nil {
			fmt.Fprintf(os.Stderr, "tg: %v\n", err)
			os.Exit(1)
		}
	default:
		sh.repl()
	}
}

type shell struct {
	db    *database.Database
	out   *os.File
	mode  string // "list" | "csv"
	timer bool
	echo  bool
}

func (sh *shell) runFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return sh.runScript(string(data))
}

func (sh *shell) runScript(script string) error {
	stmts, err := sql.ParseScript(script)
	if err != nil {
		return err
	}
	for _, stmt := range stmts {
		if err := sh.runParsed(stmt); err != nil {
			return err
		}
	}
	return nil
}

// runParsed executa um statement já parseado e imprime o resultado.
func (sh *shell) runParsed(stmt sql.Statement) error {
	start := time.Now()

	if _, ok := stmt.(*sql.SelectStmt); ok {
		rows, err := sh.db.QueryStmt(stmt)
		if err != nil {
			return err
		}
		if err := sh.printRows(rows); err != nil {
			return err
		}
	} else {
		n, err := sh.db.ExecuteStmt(stmt)
		if err != nil {
			return err
		}
		fmt.Fprintf(sh.out, "OK, %d row(s) affected\n", n)
	}

	if sh.timer {
		fmt.Fprintf(sh.out, "Run time: %v\n", time.Since(start))
	}
	return nil
}

func (sh *shell) printRows(rows *executor.Rows) error {
	cols := rows.Columns()
	sep := " | "
	if sh.mode == "csv" {
		sep = ","
	}
	fmt.Fprintln(sh.out, strings.Join(cols, sep))

	count := 0
	for {
		row, ok, err := rows.Next()
		if err != nil {
			return err
		}
		if !ok {
			break
		}
		parts := make([]string, len(row))
		for i, v := range row {
			parts[i] = v.String()
		}
		fmt.Fprintln(sh.out, strings.Join(parts, sep))
		count++
	}
	fmt.Fprintf(sh.out, "(%d row(s))\n", count)
	return nil
}

func (sh *shell) repl() {
	line := liner.NewLiner()
	defer line.Close()
	line.SetCtrlCAborts(true)

	historyPath := filepath.Join(os.TempDir(), ".tg_history")
	if f, err := os.Open(historyPath); err == nil {
		line.ReadHistory(f)
		f.Close()
	}
	defer func() {
		if f, err := os.Create(historyPath); err == nil {
			line.WriteHistory(f)
			f.Close()
		}
	}()

	fmt.Fprintln(sh.out, "tegdb shell — .quit para sair, .tables/.schema para o catálogo")

	var buffer strings.Builder
	for {
		prompt := "tg> "
		if buffer.Len() > 0 {
			prompt = "...> "
		}
		input, err := line.Prompt(prompt)
		if err != nil {
			fmt.Fprintln(sh.out)
			return
		}

		trimmed := strings.TrimSpace(input)
		if trimmed == "" {
			continue
		}

		if buffer.Len() == 0 && strings.HasPrefix(trimmed, ".") {
			line.AppendHistory(input)
			if sh.dotCommand(trimmed) {
				return
			}
			continue
		}

		buffer.WriteString(input)
		buffer.WriteString("\n")
		if !strings.HasSuffix(trimmed, ";") {
			continue // Statement continua na próxima linha
		}

		script := buffer.String()
		buffer.Reset()
		line.AppendHistory(strings.TrimSpace(script))

		if sh.echo {
			fmt.Fprintln(sh.out, strings.TrimSpace(script))
		}
		if err := sh.runScript(script); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
		}
	}
}

// dotCommand trata os comandos do shell; retorna true para encerrar.
func (sh *shell) dotCommand(cmd string) bool {
	fields := strings.Fields(cmd)
	switch fields[0] {
	case ".quit", ".exit":
		return true

	case ".tables":
		for _, t := range sh.db.Tables() {
			fmt.Fprintln(sh.out, t)
		}

	case ".schema":
		tables := sh.db.Tables()
		if len(fields) > 1 {
			tables = fields[1:]
		}
		for _, t := range tables {
			schema, ok := sh.db.Schema(t)
			if !ok {
				fmt.Fprintf(os.Stderr, "error: no such table %q\n", t)
				continue
			}
			fmt.Fprintf(sh.out, "CREATE TABLE %s (\n", schema.Name)
			for i := range schema.Columns {
				c := &schema.Columns[i]
				decl := "  " + c.Name + " " + c.Type.String()
				if c.Width > 0 {
					decl += fmt.Sprintf("(%d)", c.Width)
				}
				if c.PKPos > 0 {
					decl += " PRIMARY KEY"
				}
				if !c.Nullable && c.PKPos == 0 {
					decl += " NOT NULL"
				}
				if c.Unique {
					decl += " UNIQUE"
				}
				if i < len(schema.Columns)-1 {
					decl += ","
				}
				fmt.Fprintln(sh.out, decl)
			}
			fmt.Fprintln(sh.out, ");")
		}

	case ".read":
		if len(fields) != 2 {
			fmt.Fprintln(os.Stderr, "usage: .read FILE")
			break
		}
		if err := sh.runFile(fields[1]); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
		}

	case ".output":
		if len(fields) != 2 || fields[1] == "stdout" {
			if sh.out != os.Stdout {
				sh.out.Close()
			}
			sh.out = os.Stdout
			break
		}
		f, err := os.Create(fields[1])
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			break
		}
		if sh.out != os.Stdout {
			sh.out.Close()
		}
		sh.out = f

	case ".timer":
		sh.timer = len(fields) > 1 && fields[1] == "on"

	case ".echo":
		sh.echo = len(fields) > 1 && fields[1] == "on"

	case ".mode":
		if len(fields) == 2 && (fields[1] == "list" || fields[1] == "csv") {
			sh.mode = fields[1]
		} else {
			fmt.Fprintln(os.Stderr, "usage: .mode list|csv")
		}

	case ".stats":
		st := sh.db.CacheStats()
		fmt.Fprintf(sh.out, "value cache: %d hit(s), %d miss(es), %d byte(s) resident\n", st.Hits, st.Misses, st.Used)

	default:
		fmt.Fprintf(os.Stderr, "unknown command %s\n", fields[0])
	}
	return false
}
