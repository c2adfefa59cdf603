package mongo

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/1a2yd09/gpu-scheduling-algorithm/pkg/common/trainingjob"
	"gopkg.in/mgo.v2"
	"gopkg.in/mgo.v2/bson"
	"k8s.io/klog/v2"
)

const (
	databaseNameJobInfo = "gsa"
	jobCollection       = "training_data"

	maxGPUNum = 32
)

// TrainingJobInfo is the document of one job in the training data
// collection. Maps are keyed by GPU count.
type TrainingJobInfo struct {
	Name         string             `bson:"name" json:"name"`
	TotalEpochs  int32              `bson:"total_epochs" json:"total_epochs"`
	EpochTimeSec map[string]float64 `bson:"epoch_time_sec" json:"epoch_time_sec"`
	// Optional per GPU count override of TotalEpochs
	EpochNum map[string]int32 `bson:"epoch_num,omitempty" json:"epoch_num,omitempty"`
}

// Record returns the profile of the job at gpuNum GPUs.
func (info TrainingJobInfo) Record(gpuNum int) (trainingjob.Record, error) {
	key := strconv.Itoa(gpuNum)
	epochTime, ok := info.EpochTimeSec[key]
	if !ok {
		return trainingjob.Record{}, trainingjob.NewLookupMiss(info.Name, gpuNum)
	}
	epochs := info.TotalEpochs
	if n, ok := info.EpochNum[key]; ok {
		epochs = n
	}
	return trainingjob.Record{EpochNum: int(epochs), EpochTime: epochTime}, nil
}

// Spec converts the document into a table entry.
func (info TrainingJobInfo) Spec() trainingjob.JobSpec {
	gpus := []int{}
	for key := range info.EpochTimeSec {
		if g, err := strconv.Atoi(key); err == nil && g > 0 {
			gpus = append(gpus, g)
		}
	}
	sort.Ints(gpus)

	spec := trainingjob.JobSpec{Name: info.Name, Epochs: int(info.TotalEpochs)}
	for i, g := range gpus {
		if g != i+1 {
			break
		}
		r, _ := info.Record(g)
		spec.EpochTimes = append(spec.EpochTimes, r.EpochTime)
		spec.EpochNums = append(spec.EpochNums, r.EpochNum)
	}
	return spec
}

// InfoFromSpec converts a table entry into a document.
func InfoFromSpec(spec trainingjob.JobSpec) TrainingJobInfo {
	info := TrainingJobInfo{
		Name:         spec.Name,
		TotalEpochs:  int32(spec.Epochs),
		EpochTimeSec: make(map[string]float64),
	}
	for i, epochTime := range spec.EpochTimes {
		key := strconv.Itoa(i + 1)
		info.EpochTimeSec[key] = epochTime
		if spec.EpochNums != nil && spec.EpochNums[i] != spec.Epochs {
			if info.EpochNum == nil {
				info.EpochNum = make(map[string]int32)
			}
			info.EpochNum[key] = int32(spec.EpochNums[i])
		}
	}
	return info
}

// CreateBaseJobInfo creates a TrainingJobInfo that assumes linear speedup,
// with one second per epoch on a single GPU.
func CreateBaseJobInfo(jobName string, epochs int) TrainingJobInfo {
	time := map[string]float64{}
	for i := 1; i <= maxGPUNum; i++ {
		time[strconv.Itoa(i)] = 1 / float64(i)
	}
	return TrainingJobInfo{
		Name:         jobName,
		TotalEpochs:  int32(epochs),
		EpochTimeSec: time,
	}
}

// ConnectMongo connects to a mongo session.
// It returns a pointer to the session, or an error if the connection attempt fails.
func ConnectMongo(mongoURI string) (*mgo.Session, error) {
	session, err := mgo.Dial(mongoURI)
	if err != nil {
		klog.ErrorS(err, "Could not connect to mongodb", "mongoURI", mongoURI)
		return nil, err
	}
	klog.InfoS("Connected to mongodb", "mongoURI", mongoURI)
	return session, nil
}

// Store reads and writes training data in mongo. It implements
// trainingjob.Lookup with one query per call; wrap it in a
// trainingjob.SharedCache, or Load it once, before planning.
type Store struct {
	session *mgo.Session
}

// NewStore creates a store on top of session. The store copies the session
// for every operation.
func NewStore(session *mgo.Session) *Store {
	return &Store{session: session}
}

// Get implements trainingjob.Lookup.
func (s *Store) Get(jobName string, gpuNum int) (trainingjob.Record, error) {
	sess := s.session.Copy()
	defer sess.Close()

	info := TrainingJobInfo{}
	err := sess.DB(databaseNameJobInfo).C(jobCollection).Find(bson.M{"name": jobName}).One(&info)
	if err == mgo.ErrNotFound {
		return trainingjob.Record{}, trainingjob.NewLookupMiss(jobName, gpuNum)
	}
	if err != nil {
		return trainingjob.Record{}, fmt.Errorf("finding training data of job %q: %w", jobName, err)
	}
	return info.Record(gpuNum)
}

// Load reads the whole collection into an in-memory table.
func (s *Store) Load() (*trainingjob.Table, error) {
	sess := s.session.Copy()
	defer sess.Close()

	infos := []TrainingJobInfo{}
	if err := sess.DB(databaseNameJobInfo).C(jobCollection).Find(nil).All(&infos); err != nil {
		return nil, fmt.Errorf("loading training data: %w", err)
	}
	spec := trainingjob.TableSpec{}
	for _, info := range infos {
		spec.Jobs = append(spec.Jobs, info.Spec())
	}
	klog.V(4).InfoS("Loaded training data from mongodb", "jobs", len(infos))
	return trainingjob.NewTableFromSpec(spec)
}

// Import upserts every job of spec, replacing existing documents of the same
// name.
func (s *Store) Import(spec trainingjob.TableSpec) error {
	sess := s.session.Copy()
	defer sess.Close()

	c := sess.DB(databaseNameJobInfo).C(jobCollection)
	for _, job := range spec.Jobs {
		if _, err := c.Upsert(bson.M{"name": job.Name}, InfoFromSpec(job)); err != nil {
			return fmt.Errorf("importing training data of job %q: %w", job.Name, err)
		}
		klog.V(5).InfoS("Imported training data", "job", job.Name, "gpus", len(job.EpochTimes))
	}
	klog.InfoS("Imported training data into mongodb", "jobs", len(spec.Jobs))
	return nil
}
