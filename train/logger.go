package train

import (
	"log"
	"os"

	"github.com/pkg/errors"
)

// Loggers bundles the two log files a Driver writes to, grounded on
// hmmlib.HMM.SetLogger's msglogger/parlogger pair: msg carries the
// per-iteration progress trace. par is created alongside it, but the
// driver and CLI write only to msg, so the par file stays empty.
type Loggers struct {
	Msg *log.Logger
	Par *log.Logger

	LogMode int

	msgFile *os.File
	parFile *os.File
}

// NewLoggers creates "<prefix>_msg.log" and "<prefix>_par.log", matching
// the file-naming convention of HMM.SetLogger. logMode gates how many of
// the driver's Logf calls actually reach the message log (at 0 only
// level-0 messages, such as optimizer failure, are written).
func NewLoggers(prefix string, logMode int) (*Loggers, error) {
	msgFile, err := os.Create(prefix + "_msg.log")
	if err != nil {
		return nil, errors.Wrapf(err, "creating %s_msg.log", prefix)
	}
	parFile, err := os.Create(prefix + "_par.log")
	if err != nil {
		msgFile.Close()
		return nil, errors.Wrapf(err, "creating %s_par.log", prefix)
	}
	return &Loggers{
		Msg:     log.New(msgFile, "", log.Ltime),
		Par:     log.New(parFile, "", 0),
		LogMode: logMode,
		msgFile: msgFile,
		parFile: parFile,
	}, nil
}

// Logf writes to the message log only when level is within LogMode's
// verbosity budget (0..3, higher is more verbose), the same gating
// original_source's log_mode configuration key describes.
func (l *Loggers) Logf(level int, format string, args ...any) {
	if l == nil || l.Msg == nil || level > l.LogMode {
		return
	}
	l.Msg.Printf(format, args...)
}

// Close closes both underlying log files.
func (l *Loggers) Close() error {
	if l == nil {
		return nil
	}
	err1 := l.msgFile.Close()
	err2 := l.parFile.Close()
	if err1 != nil {
		return err1
	}
	return err2
}
