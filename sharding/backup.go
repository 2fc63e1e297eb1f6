package sharding

import (
	"context"
	"io"
	"os/exec"
)

// MysqldumpBackupper shells out to the mysqldump/mysql client binaries
// to move a shard's data, the same logical dump/restore mechanism the
// original fabric-style mover used. It is the one piece of move_shard/
// split_shard that cannot be a library call — there is no third-party
// Go client for the mysqldump wire format, only the MySQL-provided
// binaries — so it is deliberately built on os/exec rather than a
// database/sql connection.
type MysqldumpBackupper struct {
	MysqldumpPath string
	MysqlPath     string
	User          string
	Passwd        string
}

func NewMysqldumpBackupper(user, passwd string) *MysqldumpBackupper {
	return &MysqldumpBackupper{MysqldumpPath: "mysqldump", MysqlPath: "mysql", User: user, Passwd: passwd}
}

func (b *MysqldumpBackupper) args(host string) []string {
	return []string{"-h", host, "-u", b.User, "-p" + b.Passwd, "--single-transaction", "--routines", "--triggers"}
}

// Dump streams a single-transaction logical dump of every database on
// sourceGroupDSN's host. Callers read the pipe to completion before the
// command's context is cancelled.
func (b *MysqldumpBackupper) Dump(ctx context.Context, sourceGroupDSN string) (io.Reader, error) {
	args := append(b.args(sourceGroupDSN), "--all-databases")
	cmd := exec.CommandContext(ctx, b.MysqldumpPath, args...)
	out, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		return nil, err
	}
	return out, nil
}

// Restore pipes dump into the mysql client connected to destGroupDSN's
// host, replaying the logical dump verbatim.
func (b *MysqldumpBackupper) Restore(ctx context.Context, destGroupDSN string, dump io.Reader) error {
	cmd := exec.CommandContext(ctx, b.MysqlPath, b.args(destGroupDSN)...)
	cmd.Stdin = dump
	return cmd.Run()
}
