package ir

import (
	"fmt"
	"strings"
)

// ActionPrefix namespaces the built-in action types. Custom action types
// must not start with it.
const ActionPrefix = "strata/"

// Built-in action types.
const (
	TypeInsert            = ActionPrefix + "INSERT"
	TypeUpdate            = ActionPrefix + "UPDATE"
	TypeRemove            = ActionPrefix + "REMOVE"
	TypeReset             = ActionPrefix + "RESET"
	TypePause             = ActionPrefix + "PAUSE"
	TypeResume            = ActionPrefix + "RESUME"
	TypeSave              = ActionPrefix + "SAVE"
	TypeRestore           = ActionPrefix + "RESTORE"
	TypeSaveOriginals     = ActionPrefix + "SAVE_ORIGINALS"
	TypeRetrieveOriginals = ActionPrefix + "RETRIEVE_ORIGINALS"
	TypeBatch             = ActionPrefix + "BATCH"
	TypeRefresh           = ActionPrefix + "REFRESH"
	TypeValue             = ActionPrefix + "VALUE"
	TypeInit              = ActionPrefix + "INIT"

	TypeCreateBranch = ActionPrefix + "CREATE_BRANCH"
	TypeSwitchBranch = ActionPrefix + "SWITCH_BRANCH"
	TypeSaveBranch   = ActionPrefix + "SAVE_BRANCH"
	TypeResetBranch  = ActionPrefix + "RESET_BRANCH"
	TypeRemoveBranch = ActionPrefix + "REMOVE_BRANCH"
	TypeGoForward    = ActionPrefix + "GO_FORWARD"
	TypeGoBack       = ActionPrefix + "GO_BACK"
	TypeGoLive       = ActionPrefix + "GO_LIVE"
)

// Action is a sealed interface over every mutation intent the reducers
// understand. Custom is the only open variant.
type Action interface {
	ActionType() string
	irAction()
}

// CollectionAction is implemented by actions that target one collection.
type CollectionAction interface {
	Action
	Collection() string
}

// RepoAction is implemented by the branch/version-control actions.
type RepoAction interface {
	Action
	repoAction()
}

// Insert sets ID to Doc, overwriting any existing document.
type Insert struct {
	Coll string
	ID   string
	Doc  Object
}

// Update replaces or modifies an existing document. A Doc whose keys are
// all modifiers ($set, $unset, $inc, $mul) is applied field by field.
type Update struct {
	Coll string
	ID   string
	Doc  Object
}

// Remove deletes a document if it exists.
type Remove struct {
	Coll string
	ID   string
}

type Reset struct{ Coll string }
type Pause struct{ Coll string }
type Resume struct{ Coll string }
type Save struct{ Coll string }
type Restore struct{ Coll string }
type SaveOriginals struct{ Coll string }
type RetrieveOriginals struct{ Coll string }

// Batch applies Actions to Coll in one scope and recomputes once.
type Batch struct {
	Coll    string
	Actions []Action
}

// Refresh recomputes every derived node.
type Refresh struct{}

// SetValue assigns a value entry.
type SetValue struct {
	Name  string
	Value Value
}

// Init is the sentinel recorded as the first action of a fresh repo.
type Init struct{}

// Custom is a user-named action resolved through the compiled action table.
type Custom struct {
	Type    string
	Payload Value
}

type CreateBranch struct{ Branch string }
type SwitchBranch struct{ Branch string }
type SaveBranch struct{ Branch string }
type ResetBranch struct{ Branch string }
type RemoveBranch struct{ Branch string }
type GoForward struct{ Steps int }
type GoBack struct{ Steps int }
type GoLive struct{}

func (Insert) ActionType() string            { return TypeInsert }
func (Update) ActionType() string            { return TypeUpdate }
func (Remove) ActionType() string            { return TypeRemove }
func (Reset) ActionType() string             { return TypeReset }
func (Pause) ActionType() string             { return TypePause }
func (Resume) ActionType() string            { return TypeResume }
func (Save) ActionType() string              { return TypeSave }
func (Restore) ActionType() string           { return TypeRestore }
func (SaveOriginals) ActionType() string     { return TypeSaveOriginals }
func (RetrieveOriginals) ActionType() string { return TypeRetrieveOriginals }
func (Batch) ActionType() string             { return TypeBatch }
func (Refresh) ActionType() string           { return TypeRefresh }
func (SetValue) ActionType() string          { return TypeValue }
func (Init) ActionType() string              { return TypeInit }
func (c Custom) ActionType() string          { return c.Type }
func (CreateBranch) ActionType() string      { return TypeCreateBranch }
func (SwitchBranch) ActionType() string      { return TypeSwitchBranch }
func (SaveBranch) ActionType() string        { return TypeSaveBranch }
func (ResetBranch) ActionType() string       { return TypeResetBranch }
func (RemoveBranch) ActionType() string      { return TypeRemoveBranch }
func (GoForward) ActionType() string         { return TypeGoForward }
func (GoBack) ActionType() string            { return TypeGoBack }
func (GoLive) ActionType() string            { return TypeGoLive }

func (Insert) irAction()            {}
func (Update) irAction()            {}
func (Remove) irAction()            {}
func (Reset) irAction()             {}
func (Pause) irAction()             {}
func (Resume) irAction()            {}
func (Save) irAction()              {}
func (Restore) irAction()           {}
func (SaveOriginals) irAction()     {}
func (RetrieveOriginals) irAction() {}
func (Batch) irAction()             {}
func (Refresh) irAction()           {}
func (SetValue) irAction()          {}
func (Init) irAction()              {}
func (Custom) irAction()            {}
func (CreateBranch) irAction()      {}
func (SwitchBranch) irAction()      {}
func (SaveBranch) irAction()        {}
func (ResetBranch) irAction()       {}
func (RemoveBranch) irAction()      {}
func (GoForward) irAction()         {}
func (GoBack) irAction()            {}
func (GoLive) irAction()            {}

func (a Insert) Collection() string            { return a.Coll }
func (a Update) Collection() string            { return a.Coll }
func (a Remove) Collection() string            { return a.Coll }
func (a Reset) Collection() string             { return a.Coll }
func (a Pause) Collection() string             { return a.Coll }
func (a Resume) Collection() string            { return a.Coll }
func (a Save) Collection() string              { return a.Coll }
func (a Restore) Collection() string           { return a.Coll }
func (a SaveOriginals) Collection() string     { return a.Coll }
func (a RetrieveOriginals) Collection() string { return a.Coll }
func (a Batch) Collection() string             { return a.Coll }

func (CreateBranch) repoAction() {}
func (SwitchBranch) repoAction() {}
func (SaveBranch) repoAction()   {}
func (ResetBranch) repoAction()  {}
func (RemoveBranch) repoAction() {}
func (GoForward) repoAction()    {}
func (GoBack) repoAction()       {}
func (GoLive) repoAction()       {}

// Envelope field names. Journals and scenario files use this flat layout:
//
//	{"type": "strata/INSERT", "coll": "todos", "id": "id1", "doc": {...}}
const (
	fieldType    = "type"
	fieldColl    = "coll"
	fieldID      = "id"
	fieldDoc     = "doc"
	fieldActions = "actions"
	fieldName    = "name"
	fieldValue   = "value"
	fieldPayload = "payload"
	fieldBranch  = "branch"
	fieldSteps   = "steps"
)

// ActionEnvelope renders a as a flat Object keyed by the envelope fields.
func ActionEnvelope(a Action) (Object, error) {
	if a == nil {
		return nil, fmt.Errorf("nil action")
	}
	env := Object{fieldType: String(a.ActionType())}
	switch act := a.(type) {
	case Insert:
		env[fieldColl], env[fieldID], env[fieldDoc] = String(act.Coll), String(act.ID), docOrEmpty(act.Doc)
	case Update:
		env[fieldColl], env[fieldID], env[fieldDoc] = String(act.Coll), String(act.ID), docOrEmpty(act.Doc)
	case Remove:
		env[fieldColl], env[fieldID] = String(act.Coll), String(act.ID)
	case Batch:
		env[fieldColl] = String(act.Coll)
		items := make(Array, len(act.Actions))
		for i, sub := range act.Actions {
			subEnv, err := ActionEnvelope(sub)
			if err != nil {
				return nil, fmt.Errorf("batch[%d]: %w", i, err)
			}
			items[i] = subEnv
		}
		env[fieldActions] = items
	case CollectionAction:
		env[fieldColl] = String(act.Collection())
	case SetValue:
		env[fieldName], env[fieldValue] = String(act.Name), nullIfNil(act.Value)
	case Custom:
		env[fieldPayload] = nullIfNil(act.Payload)
	case CreateBranch:
		env[fieldBranch] = String(act.Branch)
	case SwitchBranch:
		env[fieldBranch] = String(act.Branch)
	case SaveBranch:
		env[fieldBranch] = String(act.Branch)
	case ResetBranch:
		env[fieldBranch] = String(act.Branch)
	case RemoveBranch:
		env[fieldBranch] = String(act.Branch)
	case GoForward:
		env[fieldSteps] = Int(act.Steps)
	case GoBack:
		env[fieldSteps] = Int(act.Steps)
	case Refresh, Init, GoLive:
	default:
		return nil, fmt.Errorf("unknown action %T", a)
	}
	return env, nil
}

// ActionFromEnvelope is the inverse of ActionEnvelope. Any type outside the
// built-in namespace decodes as Custom.
func ActionFromEnvelope(env Object) (Action, error) {
	typ, err := envString(env, fieldType, true)
	if err != nil {
		return nil, err
	}
	if !strings.HasPrefix(typ, ActionPrefix) {
		return Custom{Type: typ, Payload: nullIfNil(env[fieldPayload])}, nil
	}

	coll := func() (string, error) { return envString(env, fieldColl, true) }
	branch := func() (string, error) { return envString(env, fieldBranch, true) }

	switch typ {
	case TypeInsert, TypeUpdate:
		c, err := coll()
		if err != nil {
			return nil, err
		}
		id, err := envString(env, fieldID, true)
		if err != nil {
			return nil, err
		}
		doc, err := envObject(env, fieldDoc)
		if err != nil {
			return nil, err
		}
		if typ == TypeInsert {
			return Insert{Coll: c, ID: id, Doc: doc}, nil
		}
		return Update{Coll: c, ID: id, Doc: doc}, nil
	case TypeRemove:
		c, err := coll()
		if err != nil {
			return nil, err
		}
		id, err := envString(env, fieldID, true)
		if err != nil {
			return nil, err
		}
		return Remove{Coll: c, ID: id}, nil
	case TypeBatch:
		c, err := coll()
		if err != nil {
			return nil, err
		}
		raw, _ := env[fieldActions].(Array)
		actions := make([]Action, 0, len(raw))
		for i, item := range raw {
			subEnv, ok := item.(Object)
			if !ok {
				return nil, fmt.Errorf("batch[%d]: expected object, got %T", i, item)
			}
			sub, err := ActionFromEnvelope(subEnv)
			if err != nil {
				return nil, fmt.Errorf("batch[%d]: %w", i, err)
			}
			actions = append(actions, sub)
		}
		return Batch{Coll: c, Actions: actions}, nil
	case TypeReset, TypePause, TypeResume, TypeSave, TypeRestore, TypeSaveOriginals, TypeRetrieveOriginals:
		c, err := coll()
		if err != nil {
			return nil, err
		}
		return collectionAction(typ, c), nil
	case TypeRefresh:
		return Refresh{}, nil
	case TypeInit:
		return Init{}, nil
	case TypeValue:
		name, err := envString(env, fieldName, true)
		if err != nil {
			return nil, err
		}
		return SetValue{Name: name, Value: nullIfNil(env[fieldValue])}, nil
	case TypeCreateBranch, TypeSwitchBranch, TypeSaveBranch, TypeResetBranch, TypeRemoveBranch:
		b, err := branch()
		if err != nil {
			return nil, err
		}
		return branchAction(typ, b), nil
	case TypeGoForward, TypeGoBack:
		steps, ok := env[fieldSteps].(Int)
		if !ok {
			return nil, fmt.Errorf("%s: field %q must be an integer", typ, fieldSteps)
		}
		if typ == TypeGoForward {
			return GoForward{Steps: int(steps)}, nil
		}
		return GoBack{Steps: int(steps)}, nil
	case TypeGoLive:
		return GoLive{}, nil
	}
	return nil, fmt.Errorf("unknown built-in action type %q", typ)
}

// MarshalAction encodes a as its JSON envelope with sorted keys.
func MarshalAction(a Action) ([]byte, error) {
	env, err := ActionEnvelope(a)
	if err != nil {
		return nil, err
	}
	return env.MarshalJSON()
}

// UnmarshalAction decodes a JSON envelope.
func UnmarshalAction(data []byte) (Action, error) {
	v, err := UnmarshalValue(data)
	if err != nil {
		return nil, err
	}
	env, ok := v.(Object)
	if !ok {
		return nil, fmt.Errorf("action envelope must be an object, got %T", v)
	}
	return ActionFromEnvelope(env)
}

func collectionAction(typ, coll string) Action {
	switch typ {
	case TypeReset:
		return Reset{Coll: coll}
	case TypePause:
		return Pause{Coll: coll}
	case TypeResume:
		return Resume{Coll: coll}
	case TypeSave:
		return Save{Coll: coll}
	case TypeRestore:
		return Restore{Coll: coll}
	case TypeSaveOriginals:
		return SaveOriginals{Coll: coll}
	default:
		return RetrieveOriginals{Coll: coll}
	}
}

func branchAction(typ, branch string) Action {
	switch typ {
	case TypeCreateBranch:
		return CreateBranch{Branch: branch}
	case TypeSwitchBranch:
		return SwitchBranch{Branch: branch}
	case TypeSaveBranch:
		return SaveBranch{Branch: branch}
	case TypeResetBranch:
		return ResetBranch{Branch: branch}
	default:
		return RemoveBranch{Branch: branch}
	}
}

func envString(env Object, field string, required bool) (string, error) {
	v, present := env[field]
	if !present {
		if required {
			return "", fmt.Errorf("action envelope: missing field %q", field)
		}
		return "", nil
	}
	s, ok := v.(String)
	if !ok {
		return "", fmt.Errorf("action envelope: field %q must be a string, got %T", field, v)
	}
	return string(s), nil
}

func envObject(env Object, field string) (Object, error) {
	v, present := env[field]
	if !present {
		return nil, fmt.Errorf("action envelope: missing field %q", field)
	}
	obj, ok := v.(Object)
	if !ok {
		return nil, fmt.Errorf("action envelope: field %q must be an object, got %T", field, v)
	}
	return obj, nil
}

func docOrEmpty(doc Object) Object {
	if doc == nil {
		return Object{}
	}
	return doc
}

func nullIfNil(v Value) Value {
	if v == nil {
		return Null{}
	}
	return v
}
