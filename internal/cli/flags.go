package cli

import (
	"fmt"
	"io"

	"github.com/pborman/getopt"
)

const (
	programName = "simplemail"
	parameters  = "TO SUBJECT CONTENT"
)

const description = `simplemail sends an email to the address specified in TO, with the
subject specified in SUBJECT and the content specified in CONTENT.
Running simplemail for the first time asks for the mail information,
which is saved at ~/.simplemailrc and not asked again unless -r is given.`

// options holds the parsed command line of one invocation.
type options struct {
	help       bool
	verbose    bool
	reload     bool
	cc         string
	bcc        string
	attachment string
	args       []string
}

// UsageError reports a malformed command line.
type UsageError struct {
	Msg string
}

func (e *UsageError) Error() string {
	return e.Msg
}

// parseFlags parses args, which exclude the program name, into a fresh
// option set.
func parseFlags(args []string) (*options, *getopt.Set, error) {
	set := getopt.New()
	set.SetProgram(programName)
	set.SetParameters(parameters)

	help := set.Bool('h', "Show this help and exit")
	reload := set.Bool('r', "Erase the config file and ask for the mail information again")
	verbose := set.Bool('v', "Show what the program is doing")
	cc := set.String('c', "", "Add ADDR as carbon copy", "ADDR")
	bcc := set.String('b', "", "Add ADDR as blind carbon copy", "ADDR")
	attachment := set.String('a', "", "Attach the file at PATH", "PATH")

	if err := set.Getopt(append([]string{programName}, args...), nil); err != nil {
		return nil, set, &UsageError{Msg: err.Error()}
	}

	return &options{
		help:       *help,
		verbose:    *verbose,
		reload:     *reload,
		cc:         *cc,
		bcc:        *bcc,
		attachment: *attachment,
		args:       set.Args(),
	}, set, nil
}

func printUsage(w io.Writer, set *getopt.Set) {
	set.PrintUsage(w)
}

func printHelp(w io.Writer, set *getopt.Set) {
	fmt.Fprintln(w, description)
	fmt.Fprintln(w)
	set.PrintUsage(w)
}
