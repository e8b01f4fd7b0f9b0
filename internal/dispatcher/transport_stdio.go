package dispatcher

import "os"

// stdioConn adapts os.Stdin/os.Stdout to the Conn interface for the stdio
// transport, used when apexd is invoked as a subprocess collaborator.
type stdioConn struct{}

func (stdioConn) Read(p []byte) (int, error)  { return os.Stdin.Read(p) }
func (stdioConn) Write(p []byte) (int, error) { return os.Stdout.Write(p) }
func (stdioConn) Close() error                { return nil }

// Stdio returns a Conn backed by the process's standard streams.
func Stdio() Conn { return stdioConn{} }
