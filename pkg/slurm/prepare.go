package slurm

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"al.essio.dev/pkg/shellescape"
	"github.com/containerd/containerd/log"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/gnn-ops/slurm-trainer-sidecar/pkg/api"
	"github.com/gnn-ops/slurm-trainer-sidecar/pkg/store"

	"go.opentelemetry.io/otel/attribute"
	trace "go.opentelemetry.io/otel/trace"
)

// SidecarHandler carries everything the HTTP handlers need.
type SidecarHandler struct {
	Config  SlurmConfig
	JIDs    *map[string]*JidStruct
	Ctx     context.Context
	Runner  CommandRunner
	History *store.Store
}

const timestampFormat = "2006-01-02 15:04:05.999999999 -0700 MST"

// jidsMutex guards the JIDs registry: submissions and deletions mutate it
// while status and log-follow requests read it concurrently.
var jidsMutex sync.RWMutex

// JidStruct binds a job UID to the SLURM job ID and the observed times.
type JidStruct struct {
	UID        string    `json:"UID"`
	Name       string    `json:"Name"`
	Experiment string    `json:"Experiment"`
	JID        string    `json:"JID"`
	StartTime  time.Time `json:"StartTime"`
	EndTime    time.Time `json:"EndTime"`
}

// stepScript is one resolved line of the generated payload script.
type stepScript struct {
	stepName    string
	isSetupStep bool
	envFilePath string
	command     []string
}

// jobDirectory is where every file of a job lives: scripts, envfiles, JID and
// timestamp files, per-step outputs.
func jobDirectory(config SlurmConfig, experiment string, uid string) string {
	return config.DataRootFolder + experiment + "-" + uid
}

// parsingTimeFromString parses time from a string and returns it into a variable of type time.Time.
// The format time can be specified in the 3rd argument.
func parsingTimeFromString(Ctx context.Context, stringTime string, timestampFormat string) (time.Time, error) {
	parts := strings.Fields(stringTime)
	if len(parts) != 4 {
		err := errors.New("invalid timestamp format")
		log.G(Ctx).Error(err)
		return time.Time{}, err
	}

	parsedTime, err := time.Parse(timestampFormat, stringTime)
	if err != nil {
		log.G(Ctx).Error(err)
		return time.Time{}, err
	}

	return parsedTime, nil
}

// CreateDirectories is just a function to be sure directories exists at runtime
func (h *SidecarHandler) CreateDirectories() error {
	path := h.Config.DataRootFolder
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			err = os.MkdirAll(path, os.ModePerm)
			if err != nil {
				return err
			}
		}
	}
	return nil
}

// LoadJIDs loads Job IDs into the main JIDs struct from files in the root folder.
// It's useful when the sidecar went down and needed to be restarted, but there were jobs running, for example.
// Return only error in case of failure
func (h *SidecarHandler) LoadJIDs() error {
	path := h.Config.DataRootFolder

	dir, err := os.Open(path)
	if err != nil {
		log.G(h.Ctx).Error(err)
		return err
	}
	defer dir.Close()

	entries, err := dir.ReadDir(0)
	if err != nil {
		log.G(h.Ctx).Error(err)
		return err
	}

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		StartedAt := time.Time{}
		FinishedAt := time.Time{}

		JID, err := os.ReadFile(filepath.Join(path, entry.Name(), "JobID.jid"))
		if err != nil {
			log.G(h.Ctx).Debug(err)
			continue
		}
		jobUID, err := os.ReadFile(filepath.Join(path, entry.Name(), "JobUID.uid"))
		if err != nil {
			log.G(h.Ctx).Debug(err)
			continue
		}
		experiment, err := os.ReadFile(filepath.Join(path, entry.Name(), "Experiment.exp"))
		if err != nil {
			log.G(h.Ctx).Debug(err)
			continue
		}
		jobName, err := os.ReadFile(filepath.Join(path, entry.Name(), "JobName.name"))
		if err != nil {
			log.G(h.Ctx).Debug(err)
		}

		StartedAtString, err := os.ReadFile(filepath.Join(path, entry.Name(), "StartedAt.time"))
		if err != nil {
			log.G(h.Ctx).Debug(err)
		} else {
			StartedAt, err = parsingTimeFromString(h.Ctx, string(StartedAtString), timestampFormat)
			if err != nil {
				log.G(h.Ctx).Debug(err)
			}
		}

		FinishedAtString, err := os.ReadFile(filepath.Join(path, entry.Name(), "FinishedAt.time"))
		if err != nil {
			log.G(h.Ctx).Debug(err)
		} else {
			FinishedAt, err = parsingTimeFromString(h.Ctx, string(FinishedAtString), timestampFormat)
			if err != nil {
				log.G(h.Ctx).Debug(err)
			}
		}

		JIDEntry := JidStruct{
			UID:        string(jobUID),
			Name:       string(jobName),
			Experiment: string(experiment),
			JID:        string(JID),
			StartTime:  StartedAt,
			EndTime:    FinishedAt,
		}
		jidsMutex.Lock()
		(*h.JIDs)[string(jobUID)] = &JIDEntry
		jidsMutex.Unlock()
	}

	return nil
}

func createEnvFile(Ctx context.Context, path string, step api.Step) (string, error) {
	envfilePath := filepath.Join(path, step.Name+"_envfile.properties")
	log.G(Ctx).Info("-- Writing envs for step " + step.Name + " into " + envfilePath)

	envfile, err := os.Create(envfilePath)
	if err != nil {
		log.G(Ctx).Error(err)
		return "", err
	}
	defer envfile.Close()

	for _, envVar := range step.Env {
		// Values can contain quotes, spaces and any arbitrary content. The
		// payload script sources the envfile, so shellescape keeps it safe.
		tmp := envVar.Name + "=" + shellescape.Quote(envVar.Value)
		_, err := envfile.WriteString(tmp + "\n")
		if err != nil {
			log.G(Ctx).Error(err)
			return "", err
		}
		log.G(Ctx).Debug("---- Written envfile entry for key " + envVar.Name)
	}

	if err = envfile.Sync(); err != nil {
		log.G(Ctx).Error(err)
		return "", err
	}

	return envfilePath, nil
}

// prepareEnvs writes all environment variables of a step to an envfile, sh-escaped.
// It returns the envfile path, or "-" when the step has no environment.
func prepareEnvs(Ctx context.Context, path string, step api.Step) (string, error) {
	start := time.Now().UnixMicro()
	span := trace.SpanFromContext(Ctx)
	span.AddEvent("Preparing ENVs for step " + step.Name)

	if len(step.Env) == 0 {
		return "-", nil
	}

	envfilePath, err := createEnvFile(Ctx, path, step)
	if err != nil {
		return "", err
	}

	duration := time.Now().UnixMicro() - start
	span.AddEvent("Prepared ENVs for step "+step.Name, trace.WithAttributes(
		attribute.String("prepareenvs.step.name", step.Name),
		attribute.Int64("prepareenvs.duration", duration)))

	return envfilePath, nil
}

// activationCommands renders the environment activation block of the batch
// script: conda env, virtualenv or module loads, in that order of preference.
func activationCommands(config SlurmConfig, activation api.EnvActivation) []string {
	var cmds []string
	switch {
	case activation.Conda != "":
		if config.CondaSourceScript != "" {
			cmds = append(cmds, "source "+shellescape.Quote(config.CondaSourceScript))
		}
		cmds = append(cmds, "conda activate "+shellescape.Quote(activation.Conda))
	case activation.Venv != "":
		cmds = append(cmds, "source "+shellescape.Quote(filepath.Join(activation.Venv, "bin", "activate")))
	case len(activation.Modules) > 0:
		for _, m := range activation.Modules {
			cmds = append(cmds, "module load "+shellescape.Quote(m))
		}
	}
	return cmds
}

// sbatchDirectives renders the #SBATCH lines of the resource request. CPU and
// memory fall back to a minimal allocation when the spec leaves them at zero.
func sbatchDirectives(Ctx context.Context, spec *api.JobSpec) []string {
	var flags []string

	cpu := spec.Resources.CPUsPerTask
	if cpu == 0 {
		log.G(Ctx).Warning(errors.New("Max CPU resource not set for " + spec.Name + ". Only 1 CPU will be used"))
		cpu = 1
	}
	mem := spec.Resources.MemoryMB
	if mem == 0 {
		log.G(Ctx).Warning(errors.New("Max Memory resource not set for " + spec.Name + ". Only 1MB will be used"))
		mem = 1
	}
	flags = append(flags, "--cpus-per-task="+strconv.Itoa(cpu))
	flags = append(flags, "--mem="+strconv.FormatInt(mem, 10))

	if spec.Resources.Gres != "" {
		flags = append(flags, "--gres="+spec.Resources.Gres)
	} else if spec.Resources.GPUs > 0 {
		flags = append(flags, "--gres=gpu:"+strconv.Itoa(spec.Resources.GPUs))
	}
	if spec.Resources.Partition != "" {
		flags = append(flags, "--partition="+spec.Resources.Partition)
	}
	if spec.Resources.Nodes > 0 {
		flags = append(flags, "--nodes="+strconv.Itoa(spec.Resources.Nodes))
	}
	if spec.Resources.NTasks > 0 {
		flags = append(flags, "--ntasks="+strconv.Itoa(spec.Resources.NTasks))
	}
	if spec.Resources.WallTime != "" {
		flags = append(flags, "--time="+spec.Resources.WallTime)
	}
	if spec.Account != "" {
		flags = append(flags, "--account="+spec.Account)
	}
	if spec.MailUser != "" {
		flags = append(flags, "--mail-user="+spec.MailUser, "--mail-type=ALL")
	}
	flags = append(flags, spec.SbatchFlags...)
	return flags
}

// produceSLURMScript generates a SLURM script according to data collected.
// It must be called after ENVs are already set up since it relies on the
// envfile paths being resolved in the steps parameter.
// It returns the path to the generated script, the full list of generated
// files (for staging on a login node) and the first encountered error.
func produceSLURMScript(
	Ctx context.Context,
	config SlurmConfig,
	spec *api.JobSpec,
	path string,
	steps []stepScript,
) (string, []string, error) {
	start := time.Now().UnixMicro()
	span := trace.SpanFromContext(Ctx)
	span.AddEvent("Producing SLURM script")

	log.G(Ctx).Info("-- Creating file for the Slurm script")
	err := os.MkdirAll(path, os.ModePerm)
	if err != nil {
		log.G(Ctx).Error(err)
		return "", nil, err
	}
	log.G(Ctx).Info("-- Created directory " + path)

	fJob, err := os.Create(path + "/job.slurm")
	if err != nil {
		log.G(Ctx).Error("Unable to create file ", path, "/job.slurm")
		log.G(Ctx).Error(err)
		return "", nil, err
	}
	defer fJob.Close()

	err = os.Chmod(path+"/job.slurm", 0774)
	if err != nil {
		log.G(Ctx).Error("Unable to chmod file ", path, "/job.slurm")
		log.G(Ctx).Error(err)
		return "", nil, err
	}

	f, err := os.Create(path + "/job.sh")
	if err != nil {
		log.G(Ctx).Error("Unable to create file ", path, "/job.sh")
		log.G(Ctx).Error(err)
		return "", nil, err
	}
	defer f.Close()

	err = os.Chmod(path+"/job.sh", 0774)
	if err != nil {
		log.G(Ctx).Error("Unable to chmod file ", path, "/job.sh")
		log.G(Ctx).Error(err)
		return "", nil, err
	}

	var sbatchFlagsAsString string
	for _, slurmFlag := range sbatchDirectives(Ctx, spec) {
		sbatchFlagsAsString += "\n#SBATCH " + slurmFlag
	}

	prefix := ""
	if config.Commandprefix != "" {
		prefix += "\n" + config.Commandprefix
	}
	for _, cmd := range activationCommands(config, spec.Activation) {
		prefix += "\n" + cmd
	}
	if spec.WorkingDir != "" {
		prefix += "\ncd " + shellescape.Quote(spec.WorkingDir)
	}

	sbatch_macros := "#!" + config.BashPath +
		"\n#SBATCH --job-name=" + spec.UID +
		"\n#SBATCH --output=" + path + "/job.out" +
		sbatchFlagsAsString +
		"\n" +
		prefix +
		"\n" + f.Name() +
		"\n"

	_, err = fJob.WriteString(sbatch_macros)
	if err != nil {
		log.G(Ctx).Error(err)
		return "", nil, err
	}
	log.G(Ctx).Debug("---- Written job.slurm file")

	var stringToBeWritten strings.Builder
	stringToBeWritten.WriteString(payloadFunctions)

	stringToBeWritten.WriteString("\nexport workingPath=")
	stringToBeWritten.WriteString(path)
	stringToBeWritten.WriteString("\n")

	generated := []string{fJob.Name(), f.Name()}

	for _, step := range steps {
		stringToBeWritten.WriteString("\n")
		if step.isSetupStep {
			stringToBeWritten.WriteString("runSetupStep ")
		} else {
			stringToBeWritten.WriteString("runStep ")
		}
		stringToBeWritten.WriteString(step.stepName)
		stringToBeWritten.WriteString(" ")
		stringToBeWritten.WriteString(step.envFilePath)
		for _, commandEntry := range step.command {
			stringToBeWritten.WriteString(" ")
			// We convert from GO array to shell command, so escaping is
			// important to avoid space, quote issues and injection vulnerabilities.
			stringToBeWritten.WriteString(shellescape.Quote(commandEntry))
		}
		if step.envFilePath != "-" {
			generated = append(generated, step.envFilePath)
		}
	}

	// Waits for all steps to end, then exit with the highest exit code.
	stringToBeWritten.WriteString("\n\nwaitSteps\nendScript\n")

	_, err = f.WriteString(stringToBeWritten.String())
	if err != nil {
		log.G(Ctx).Error(err)
		return "", nil, err
	}
	log.G(Ctx).Debug("---- Written job.sh file")

	duration := time.Now().UnixMicro() - start
	span.AddEvent("Produced SLURM script", trace.WithAttributes(
		attribute.String("produceslurmscript.path", f.Name()),
		attribute.Int64("produceslurmscript.duration", duration),
	))

	return fJob.Name(), generated, nil
}

// payloadFunctions is the fixed part of job.sh. Setup steps are fail-fast and
// sequential; run steps run in the background and are waited on; the script
// exits with the highest step exit code. Each step gets a
// <kind>-<name>.out and a <kind>-<name>.status file under workingPath.
const payloadFunctions = `

####
# Functions
####

# Wait for 60 times 2s if the file exist. The file can be a directory or symlink or anything.
waitFileExist() {
  filePath="$1"
  printf "%s\n" "$(date -Is --utc) Checking if file exists: ${filePath} ..."
  i=1
  iMax=60
  while test "${i}" -le "${iMax}" ; do
	if test -e "${filePath}" ; then
	  printf "%s\n" "$(date -Is --utc) attempt ${i}/${iMax} file found ${filePath}"
	  break
	fi
    printf "%s\n" "$(date -Is --utc) attempt ${i}/${iMax} file not found ${filePath}"
	i=$((i + 1))
    sleep 2
  done
}

runSetupStep() {
  step="$1"
  envfile="$2"
  shift 2
  printf "%s\n" "$(date -Is --utc) Running setup step ${step}..."
  time ( if test "${envfile}" != "-" ; then set -a; . "${envfile}"; set +a; fi; "$@" ) &> ${workingPath}/setup-${step}.out
  exitCode="$?"
  printf "%s\n" "${exitCode}" > ${workingPath}/setup-${step}.status
  waitFileExist "${workingPath}/setup-${step}.status"
  if test "${exitCode}" != 0 ; then
    printf "%s\n" "$(date -Is --utc) Setup step ${step} failed with status ${exitCode}" >&2
    # Setup steps are fail-fast.
    exit "${exitCode}"
  fi
}

runStep() {
  step="$1"
  envfile="$2"
  shift 2
  # This subshell below is NOT POSIX shell compatible, it needs for example bash.
  time ( if test "${envfile}" != "-" ; then set -a; . "${envfile}"; set +a; fi; "$@" ) &> ${workingPath}/run-${step}.out &
  pid="$!"
  printf "%s\n" "$(date -Is --utc) Running in background ${step} pid ${pid}..."
  pidSteps="${pidSteps} ${pid}:${step}"
}

waitSteps() {
  # POSIX shell substring test below. Step names follow the DNS pattern
  # (hyphen alphanumeric, so no ":" inside)
  # pidStep=12345:step-name
  # ${pidStep%:*} => 12345
  # ${pidStep#*:} => step-name
  for pidStep in ${pidSteps} ; do
    pid="${pidStep%:*}"
    step="${pidStep#*:}"
    printf "%s\n" "$(date -Is --utc) Waiting for step ${step} pid ${pid}..."
    wait "${pid}"
    exitCode="$?"
    printf "%s\n" "${exitCode}" > "${workingPath}/run-${step}.status"
    printf "%s\n" "$(date -Is --utc) Step ${step} pid ${pid} ended with status ${exitCode}."
	waitFileExist "${workingPath}/run-${step}.status"
  done

  for filestatus in $(ls ${workingPath}/*.status) ; do
		exitCode=$(cat "$filestatus")
    test "${highestExitCode}" -lt "${exitCode}" && highestExitCode="${exitCode}"
  done
}

endScript() {
  printf "%s\n" "$(date -Is --utc) End of script, highest exit code ${highestExitCode}..."
  printf "%s\n" "${highestExitCode}" > "${workingPath}/job.status"
  exit "${highestExitCode}"
}

####
# Main
####

highestExitCode=0

`

// SLURMBatchSubmit submits the job script in the path argument to the SLURM queue.
// At this point, it's up to the SLURM scheduler to manage the job.
// In remote mode the generated files are staged on the login node first.
// Returns the output of the sbatch command and the first encountered error.
func SLURMBatchSubmit(Ctx context.Context, config SlurmConfig, runner CommandRunner, path string, generated []string) (string, error) {
	log.G(Ctx).Info("- Submitting Slurm job")

	var g errgroup.Group
	for _, file := range generated {
		file := file
		g.Go(func() error {
			source, err := os.Open(file)
			if err != nil {
				return err
			}
			defer source.Close()
			return runner.Stage(Ctx, source, file, "0774")
		})
	}
	if err := g.Wait(); err != nil {
		log.G(Ctx).Error("Unable to stage the job files: ", err)
		return "", err
	}

	stdout, err := runner.RunCommand(Ctx, config.Sbatchpath+" "+path)
	if err != nil {
		log.G(Ctx).Error("Could not run sbatch: ", err)
		return "", err
	}
	log.G(Ctx).Debug("Job submitted")
	return strings.ReplaceAll(stdout, "\n", ""), nil
}

// handleJidAndJobUID creates a JID file to store the Job ID of the submitted job.
// The output parameter must be the output of SLURMBatchSubmit function and the path
// is the path where to store the JID file.
// It also adds the JID to the JIDs main structure.
// Finally, it stores the job name and experiment info in the same location, to
// restore status at startup.
// Return the first encountered error.
func handleJidAndJobUID(Ctx context.Context, spec *api.JobSpec, JIDs *map[string]*JidStruct, output string, path string) (string, error) {
	r := regexp.MustCompile(`Submitted batch job (?P<jid>\d+)`)
	jid := r.FindStringSubmatch(output)
	if jid == nil {
		err := fmt.Errorf("unable to parse a job ID from sbatch output: %q", output)
		log.G(Ctx).Error(err)
		return "", err
	}

	toWrite := map[string]string{
		"JobID.jid":      jid[1],
		"JobUID.uid":     spec.UID,
		"JobName.name":   spec.Name,
		"Experiment.exp": spec.Experiment,
	}
	for name, content := range toWrite {
		if err := os.WriteFile(filepath.Join(path, name), []byte(content), 0644); err != nil {
			log.G(Ctx).Error("Can't create file " + name)
			return "", err
		}
	}

	jidsMutex.Lock()
	(*JIDs)[spec.UID] = &JidStruct{UID: spec.UID, Name: spec.Name, Experiment: spec.Experiment, JID: jid[1]}
	jidsMutex.Unlock()
	log.G(Ctx).Info("Job ID is: " + jid[1])

	return jid[1], nil
}

// removeJID delete a JID from the structure
func removeJID(jobUID string, JIDs *map[string]*JidStruct) {
	jidsMutex.Lock()
	delete(*JIDs, jobUID)
	jidsMutex.Unlock()
}

// deleteJob checks if a Job has not yet been deleted and, in case, calls the scancel command to abort the job execution.
// It then removes the JID from the main JIDs structure and all the related files on the disk.
// Returns the first encountered error.
func deleteJob(Ctx context.Context, config SlurmConfig, runner CommandRunner, jobUID string, JIDs *map[string]*JidStruct, path string) error {
	log.G(Ctx).Info("- Deleting Job " + jobUID)
	span := trace.SpanFromContext(Ctx)
	jid := ""
	if checkIfJidExists(Ctx, JIDs, jobUID) {
		jidsMutex.RLock()
		jid = (*JIDs)[jobUID].JID
		jidsMutex.RUnlock()
		_, err := runner.RunCommand(Ctx, config.Scancelpath+" "+jid)
		if err != nil {
			log.G(Ctx).Error(err)
			return err
		}
		log.G(Ctx).Info("- Deleted Job ", jid)
	}
	removeJID(jobUID, JIDs)

	errFirstAttempt := os.RemoveAll(path)
	span.SetAttributes(
		attribute.String("delete.job.uid", jobUID),
		attribute.String("delete.jid", jid),
	)

	if errFirstAttempt != nil {
		log.G(Ctx).Debug("Attempt 1 of deletion failed, not really an error! Probably log file still opened, waiting for close... Error: ", errFirstAttempt)
		// The first rm can fail while logs are followed, so opened. Removing
		// the JID ends the follow loop, maximum after the loop period of 4s,
		// so a second attempt after that is expected to succeed.
		time.Sleep(5 * time.Second)

		errSecondAttempt := os.RemoveAll(path)
		if errSecondAttempt != nil {
			log.G(Ctx).Error("Attempt 2 of deletion failed: ", errSecondAttempt)
			span.AddEvent("Failed to delete SLURM Job " + jid + " for Job " + jobUID)
			return errSecondAttempt
		}
		log.G(Ctx).Info("Attempt 2 of deletion succeeded!")
	}
	span.AddEvent("SLURM Job " + jid + " for Job " + jobUID + " successfully deleted")
	return nil
}

// checkIfJidExists checks if a JID is in the main JIDs struct
func checkIfJidExists(ctx context.Context, JIDs *map[string]*JidStruct, uid string) bool {
	span := trace.SpanFromContext(ctx)
	jidsMutex.RLock()
	_, ok := (*JIDs)[uid]
	jidsMutex.RUnlock()

	if ok {
		return true
	}
	span.AddEvent("Span for JobUID " + uid + " doesn't exist")
	return false
}

// getExitCode returns the exit code read from the .status file of a specific step and returns it as an int32 number
func getExitCode(ctx context.Context, path string, stepName string, exitCodeMatch string, sessionContextMessage string) (int32, error) {
	statusFilePath := path + "/run-" + stepName + ".status"
	exitCode, err := os.ReadFile(statusFilePath)
	if err != nil {
		statusFilePath = path + "/setup-" + stepName + ".status"
		exitCode, err = os.ReadFile(statusFilePath)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				// Case job terminated before the step script has the time to write the status file (eg: cancelled jobs).
				log.G(ctx).Warning(sessionContextMessage, "file ", statusFilePath, " not found despite the job being in terminal state. Workaround: using Slurm job exit code:", exitCodeMatch)

				exitCodeInt, errAtoi := strconv.Atoi(exitCodeMatch)
				if errAtoi != nil {
					errWithContext := fmt.Errorf(sessionContextMessage+"error during Atoi() of getExitCode() of file %s exitCodeMatch: %s error: %s %w", statusFilePath, exitCodeMatch, fmt.Sprintf("%#v", errAtoi), errAtoi)
					log.G(ctx).Error(errWithContext)
					return 11, errWithContext
				}

				errWriteFile := os.WriteFile(statusFilePath, []byte(exitCodeMatch), 0644)
				if errWriteFile != nil {
					errWithContext := fmt.Errorf(sessionContextMessage+"error during WriteFile() of getExitCode() of file %s error: %s %w", statusFilePath, fmt.Sprintf("%#v", errWriteFile), errWriteFile)
					log.G(ctx).Error(errWithContext)
					return 12, errWithContext
				}

				return int32(exitCodeInt), nil
			}
			errWithContext := fmt.Errorf(sessionContextMessage+"error during ReadFile() of getExitCode() of file %s error: %s %w", statusFilePath, fmt.Sprintf("%#v", err), err)
			log.G(ctx).Error(errWithContext)
			return 21, errWithContext
		}
	}
	exitCodeInt, err := strconv.Atoi(strings.Replace(string(exitCode), "\n", "", -1))
	if err != nil {
		log.G(ctx).Error(err)
		return 0, err
	}
	return int32(exitCodeInt), nil
}

// newJobUID assigns a UID when the spec came without one.
func newJobUID(spec *api.JobSpec) {
	if spec.UID == "" {
		spec.UID = uuid.NewString()
	}
	if spec.Experiment == "" {
		spec.Experiment = "default"
	}
}
