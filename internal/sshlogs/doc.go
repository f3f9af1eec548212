// Package sshlogs reads remote log files over SSH.
//
// All functions accept an *ssh.Client produced by sshconn.Connector and run
// shell commands over SSH exec sessions.
//
// # Following
//
// [StartFollow] starts "tail -n N -F path" and hands back a [Follow] with
// the raw stdout reader. Once stdout ends, [Follow.Wait] turns a non-zero
// exit status into a command_rejected error carrying the remote stderr. Turning that byte stream into lines is the job of [Reassembler],
// which tolerates lines and multi-byte characters split across reads and
// drops lines that are not valid UTF-8 instead of failing the stream. The
// poll loop that drives both lives in sshmanager.
//
// By default the follow command uses tail -F (--follow=name --retry), so a
// logrotate rename followed by a fresh file at the same path is picked up
// without reconnecting. [StreamOptions].FollowName=false selects tail -f.
//
// # One-shot reads
//
// [ReadAll] runs cat (or a bounded tail when a follow hint is given) to
// completion and returns the whole file. Invalid UTF-8 fails the read with
// sshconn.ErrDecode: a snapshot is all or nothing.
//
// # Discovery
//
// [Discover] runs one find per conventional log directory and merges the
// results. A directory that cannot be searched is skipped.
//
// # Log Prefixes
//
// All operations log at the [sshlogs] prefix.
package sshlogs
