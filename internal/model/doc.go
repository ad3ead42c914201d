package model

// Doc is implemented by every document the store persists. The version is
// kept outside the JSON body and bumped on each write.
type Doc interface {
	DocID() string
	DocVersion() int64
	SetDocVersion(v int64)
}

func (t *Task) DocID() string         { return t.ID }
func (t *Task) DocVersion() int64     { return t.Version }
func (t *Task) SetDocVersion(v int64) { t.Version = v }
func (j *Job) DocID() string          { return j.ID }
func (j *Job) DocVersion() int64      { return j.Version }
func (j *Job) SetDocVersion(v int64)  { j.Version = v }
func (l *List) DocID() string         { return l.ID }
func (l *List) DocVersion() int64     { return l.Version }
func (l *List) SetDocVersion(v int64) { l.Version = v }
func (u *User) DocID() string         { return u.ID }
func (u *User) DocVersion() int64     { return u.Version }
func (u *User) SetDocVersion(v int64) { u.Version = v }

func (y *YearEntries) DocID() string         { return EntriesID(y.UserID, y.Year) }
func (y *YearEntries) DocVersion() int64     { return y.Version }
func (y *YearEntries) SetDocVersion(v int64) { y.Version = v }
