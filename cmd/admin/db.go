package main

import (
	"database/sql"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	_ "modernc.org/sqlite"
)

type queryOpts struct {
	Limit    int
	Caller   string
	BallotID string
	Owner    string
}

func dbCmd(args []string) {
	fs := flag.NewFlagSet("db", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	worldID := fs.String("world", "land_1", "world id (ignored with -db)")
	dbPath := fs.String("db", "", "sqlite db path (optional)")
	limit := fs.Int("limit", 20, "result limit")
	caller := fs.String("caller", "", "caller filter (commands)")
	ballotID := fs.String("ballot", "", "ballot_id filter (commands, audits)")
	owner := fs.String("owner", "", "owner filter (grants)")
	_ = fs.Parse(args)

	q := "snapshots"
	if fs.NArg() > 0 {
		q = strings.TrimSpace(fs.Arg(0))
	}

	path := strings.TrimSpace(*dbPath)
	if path == "" {
		path = indexPath(*dataDir, *worldID)
	}
	if _, err := os.Stat(path); err != nil {
		fmt.Fprintln(os.Stderr, "open:", err)
		os.Exit(1)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "open:", err)
		os.Exit(1)
	}
	defer db.Close()

	opts := queryOpts{
		Limit:    *limit,
		Caller:   strings.TrimSpace(*caller),
		BallotID: strings.TrimSpace(*ballotID),
		Owner:    strings.TrimSpace(*owner),
	}
	if err := runQuery(db, q, opts, os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, err)
		if strings.HasPrefix(err.Error(), "unknown query") {
			fmt.Fprintln(os.Stderr, "usage: admin db [-data ./data] [-world WORLD|-db PATH] [-limit N] snapshots|commands|audits|grants|config|counts")
			os.Exit(2)
		}
		os.Exit(1)
	}
}

func indexPath(dataDir, worldID string) string {
	return filepath.Join(dataDir, "worlds", worldID, "index", "land.sqlite")
}

// runQuery prints one JSON object per row to out.
func runQuery(db *sql.DB, q string, opts queryOpts, out io.Writer) error {
	if opts.Limit <= 0 {
		opts.Limit = 20
	}
	enc := json.NewEncoder(out)
	enc.SetEscapeHTML(false)

	switch q {
	case "snapshots":
		rows, err := db.Query(`SELECT seq,path,digest,width,height,grants,claims,open_claims,ballots FROM snapshots ORDER BY seq DESC LIMIT ?`, opts.Limit)
		if err != nil {
			return fmt.Errorf("query: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var r struct {
				Seq        int64  `json:"seq"`
				Path       string `json:"path"`
				Digest     string `json:"digest"`
				Width      int    `json:"width"`
				Height     int    `json:"height"`
				Grants     int    `json:"grants"`
				Claims     int    `json:"claims"`
				OpenClaims int    `json:"open_claims"`
				Ballots    int    `json:"ballots"`
			}
			if err := rows.Scan(&r.Seq, &r.Path, &r.Digest, &r.Width, &r.Height, &r.Grants, &r.Claims, &r.OpenClaims, &r.Ballots); err != nil {
				return fmt.Errorf("scan: %w", err)
			}
			_ = enc.Encode(r)
		}
		return rows.Err()

	case "commands":
		query := `SELECT seq,caller,op,ballot_id,code,digest,req_json FROM commands`
		var where []string
		var args []any
		if opts.Caller != "" {
			where = append(where, "caller=?")
			args = append(args, opts.Caller)
		}
		if opts.BallotID != "" {
			where = append(where, "ballot_id=?")
			args = append(args, opts.BallotID)
		}
		if len(where) > 0 {
			query += " WHERE " + strings.Join(where, " AND ")
		}
		query += " ORDER BY seq DESC LIMIT ?"
		args = append(args, opts.Limit)

		rows, err := db.Query(query, args...)
		if err != nil {
			return fmt.Errorf("query: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var r struct {
				Seq      int64           `json:"seq"`
				Caller   string          `json:"caller"`
				Op       string          `json:"op"`
				BallotID string          `json:"ballot_id,omitempty"`
				Code     string          `json:"code,omitempty"`
				Digest   string          `json:"digest"`
				Req      json.RawMessage `json:"req"`
			}
			var raw string
			if err := rows.Scan(&r.Seq, &r.Caller, &r.Op, &r.BallotID, &r.Code, &r.Digest, &raw); err != nil {
				return fmt.Errorf("scan: %w", err)
			}
			r.Req = json.RawMessage(raw)
			_ = enc.Encode(r)
		}
		return rows.Err()

	case "audits":
		query := `SELECT seq,idx,actor,action,ballot_id,x1,y1,x2,y2,width,height,reason FROM audits`
		var args []any
		if opts.BallotID != "" {
			query += " WHERE ballot_id=?"
			args = append(args, opts.BallotID)
		}
		query += " ORDER BY seq DESC, idx DESC LIMIT ?"
		args = append(args, opts.Limit)

		rows, err := db.Query(query, args...)
		if err != nil {
			return fmt.Errorf("query: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var r struct {
				Seq      int64  `json:"seq"`
				Idx      int    `json:"idx"`
				Actor    string `json:"actor"`
				Action   string `json:"action"`
				BallotID string `json:"ballot_id,omitempty"`
				Rect     [4]int `json:"rect"`
				Width    int    `json:"width"`
				Height   int    `json:"height"`
				Reason   string `json:"reason,omitempty"`
			}
			if err := rows.Scan(&r.Seq, &r.Idx, &r.Actor, &r.Action, &r.BallotID,
				&r.Rect[0], &r.Rect[1], &r.Rect[2], &r.Rect[3],
				&r.Width, &r.Height, &r.Reason); err != nil {
				return fmt.Errorf("scan: %w", err)
			}
			_ = enc.Encode(r)
		}
		return rows.Err()

	case "grants":
		query := `SELECT idx,owner,x1,y1,x2,y2,as_of_seq FROM grants`
		var args []any
		if opts.Owner != "" {
			query += " WHERE owner=?"
			args = append(args, opts.Owner)
		}
		query += " ORDER BY idx LIMIT ?"
		args = append(args, opts.Limit)

		rows, err := db.Query(query, args...)
		if err != nil {
			return fmt.Errorf("query: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var r struct {
				Idx     int    `json:"idx"`
				Owner   string `json:"owner"`
				Rect    [4]int `json:"rect"`
				AsOfSeq int64  `json:"as_of_seq"`
			}
			if err := rows.Scan(&r.Idx, &r.Owner, &r.Rect[0], &r.Rect[1], &r.Rect[2], &r.Rect[3], &r.AsOfSeq); err != nil {
				return fmt.Errorf("scan: %w", err)
			}
			_ = enc.Encode(r)
		}
		return rows.Err()

	case "config":
		rows, err := db.Query(`SELECT name,digest,json,updated_at FROM config ORDER BY name`)
		if err != nil {
			return fmt.Errorf("query: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var r struct {
				Name      string          `json:"name"`
				Digest    string          `json:"digest"`
				Config    json.RawMessage `json:"config"`
				UpdatedAt string          `json:"updated_at"`
				Updated   string          `json:"updated,omitempty"`
			}
			var raw string
			if err := rows.Scan(&r.Name, &r.Digest, &raw, &r.UpdatedAt); err != nil {
				return fmt.Errorf("scan: %w", err)
			}
			r.Config = json.RawMessage(raw)
			if t, err := time.Parse(time.RFC3339Nano, r.UpdatedAt); err == nil {
				r.Updated = humanize.Time(t)
			}
			_ = enc.Encode(r)
		}
		return rows.Err()

	case "counts":
		out := map[string]string{}
		for _, table := range []string{"commands", "audits", "grants", "snapshots"} {
			var n int64
			if err := db.QueryRow(`SELECT COUNT(*) FROM ` + table).Scan(&n); err != nil {
				return fmt.Errorf("count %s: %w", table, err)
			}
			out[table] = humanize.Comma(n)
		}
		return enc.Encode(out)
	}
	return fmt.Errorf("unknown query: %s", q)
}
