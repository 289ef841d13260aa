/*
Package executor implements the Remote Executor (C1): the one
abstraction through which the rest of the system runs shell commands and
touches a filesystem on a managed host.

Three implementations satisfy the Executor interface: SSHExecutor (the
production path, built on golang.org/x/crypto/ssh), LocalExecutor (runs
on the current host via os/exec, no network hop), and InMemoryExecutor
(a scripted fake used by every other package's unit tests).
*/
package executor
